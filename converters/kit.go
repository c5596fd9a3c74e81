// Package converters holds the bundled converter bodies.
//
// Each converter is a converter.Spec built from a Kit; none of them sequence
// attempts or own retries. External engines go through the Kit's runner so
// missing binaries, exit codes and timeouts map onto converter errors the
// same way everywhere.
//
// Information Hiding:
// - Engine binary resolution and caching
// - Subprocess failure translation
// - Per-format encoder and codec tables
package converters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/subprocess"
)

// Issue codes raised by bundled converters.
const (
	CodeEngineFailed  = "ENGINE_FAILED"
	CodeAIUnavailable = "AI_UNAVAILABLE"
	CodeNoHeadings    = "NO_HEADINGS"
	CodeRawHTML       = "RAW_HTML_REMAINING"
	CodeInvalidOutput = "INVALID_OUTPUT"
)

// Kit carries the capabilities converter bodies consume.
type Kit struct {
	LLM     *llm.Facade
	Runner  subprocess.Runner
	Engines *deps.Prober
	Paths   deps.Paths
	Log     zerolog.Logger
}

func (k Kit) withDefaults() Kit {
	if k.Runner == nil {
		k.Runner = subprocess.New(k.Log)
	}
	if k.Engines == nil {
		k.Engines = deps.Default()
	}
	return k
}

// All returns every bundled converter.
func All(kit Kit) []converter.Spec {
	kit = kit.withDefaults()
	return []converter.Spec{
		Audio(kit),
		Image(kit),
		PPTX(kit),
		CSVJSON(kit),
		URLPDF(kit),
		PDFMarkdown(kit),
		Video(kit),
		TextVideo(kit),
		HTMLMarkdown(kit),
		JSONYAML(kit),
		Transcribe(kit),
	}
}

// Register adds every bundled converter to reg.
func Register(reg *converter.Registry, kit Kit) error {
	for _, spec := range All(kit) {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.Descriptor.ID(), err)
		}
	}
	return nil
}

// binary resolves an engine, reporting MissingEngine when it is absent.
func (k Kit) binary(engine string) (string, error) {
	path, err := k.Engines.Resolve(k.Paths.Requirement(engine))
	if err != nil {
		return "", converter.MissingEngine(engine, err)
	}
	return path, nil
}

// run executes an engine and translates its failure.
func (k Kit) run(ctx context.Context, engine string, args []string, opts subprocess.Options) (subprocess.Result, error) {
	bin, err := k.binary(engine)
	if err != nil {
		return subprocess.Result{}, err
	}
	res, err := k.Runner.Run(ctx, bin, args, opts)
	return res, engineError(engine, err)
}

// engineError maps subprocess failures onto converter errors. Exit errors
// stay in the chain so their stderr reaches the event log.
func engineError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *subprocess.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return converter.MissingEngine(engine, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return converter.Timeout(engine, err)
	default:
		return converter.Crash(CodeEngineFailed, err)
	}
}

// aiError maps a facade failure onto a retriable crash.
func aiError(feature string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return converter.Crash(CodeAIUnavailable, fmt.Errorf("%s: %w", feature, err))
}

// ffmpegArgs wraps the common ffmpeg flags around extra.
func ffmpegArgs(in, out string, extra ...string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in}
	args = append(args, extra...)
	return append(args, out)
}

func ext(format, def string) string {
	if format == "" {
		return def
	}
	return strings.ToLower(format)
}
