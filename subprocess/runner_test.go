package subprocess

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	skipWithoutShell(t)
	r := New(zerolog.Nop())

	res, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	skipWithoutShell(t)
	r := New(zerolog.Nop())

	res, err := r.Run(context.Background(), "sh", []string{"-c", "echo 'Invalid data found when processing input' >&2; exit 3"}, Options{})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d / %d", exitErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "Invalid data") {
		t.Errorf("stderr not captured: %q", exitErr.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	skipWithoutShell(t)
	r := New(zerolog.Nop())

	start := time.Now()
	_, err := r.Run(context.Background(), "sh", []string{"-c", "sleep 5"}, Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Errorf("process was not killed promptly")
	}
}

func TestRunCancelled(t *testing.T) {
	skipWithoutShell(t)
	r := New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := r.Run(ctx, "sh", []string{"-c", "sleep 5"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	r := New(zerolog.Nop())

	_, err := r.Run(context.Background(), "clearly-not-present-binary", nil, Options{})
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if notFound.Command != "clearly-not-present-binary" {
		t.Errorf("unexpected command %q", notFound.Command)
	}
}
