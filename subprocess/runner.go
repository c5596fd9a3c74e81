// Package subprocess spawns external engines (ffmpeg, ffprobe, a headless
// browser, pdftotext) for converter bodies.
//
// Information Hiding:
// - Process start, timeout and kill semantics hidden
// - Output capture and exit-code translation abstracted

package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options tunes one run.
type Options struct {
	// Timeout bounds the run; zero means only ctx bounds it.
	Timeout time.Duration
	Dir     string
	Stdin   []byte
	// Env is appended to the parent environment.
	Env []string
}

// Result is what a finished process left behind.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner starts processes. Converters depend on this interface so tests can
// script engine behaviour.
type Runner interface {
	Run(ctx context.Context, name string, args []string, opts Options) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args []string, opts Options) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	return f(ctx, name, args, opts)
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if tail := lastLines(e.Stderr, 3); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// NotFoundError reports a binary that is not installed.
type NotFoundError struct {
	Command string
	Err     error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Command, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Exec runs real processes.
type Exec struct {
	log zerolog.Logger
}

// New creates a process runner that logs each run at debug level.
func New(log zerolog.Logger) *Exec {
	return &Exec{log: log}
}

// Run executes name with args and captures both output streams.
// A non-zero exit yields *ExitError alongside the captured Result; a timeout
// yields an error wrapping context.DeadlineExceeded.
func (e *Exec) Run(ctx context.Context, name string, args []string, opts Options) (Result, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return Result{ExitCode: -1}, &NotFoundError{Command: name, Err: err}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = opts.Dir
	cmd.WaitDelay = 2 * time.Second
	if len(opts.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	e.log.Debug().
		Str("command", name).
		Strs("args", args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("subprocess finished")

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("%s timed out: %w", name, ctxErr)
		}
		return result, ctxErr
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return result, &ExitError{Command: name, ExitCode: exitErr.ExitCode(), Stderr: string(result.Stderr)}
		}
		return result, fmt.Errorf("run %s: %w", name, runErr)
	}
	return result, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}

var _ Runner = (*Exec)(nil)
