// Package lifecycle drives one conversion through plan, execute, evaluate
// and decide until it succeeds or fails.
//
// This is the only place attempts are sequenced. Converters supply bodies;
// the engine owns retries, workspaces, timeouts and the event frame.
//
// Information Hiding:
// - Retry and best-attempt bookkeeping hidden
// - Workspace acquisition and release on every exit path
// - Fatal versus retriable error routing
// - Diagnosis and report assembly at termination

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/planner"
	"github.com/richinex/transmute/report"
	"github.com/richinex/transmute/subprocess"
)

// Engine runs conversions for one converter. Safe for concurrent Convert
// calls: each gets its own logger, state and workspaces.
type Engine struct {
	spec        converter.Spec
	ai          *llm.Facade
	cfg         Config
	log         zerolog.Logger
	broadcaster *events.Broadcaster
}

// New creates an engine for spec. ai may be nil.
func New(spec converter.Spec, ai *llm.Facade) *Engine {
	return &Engine{
		spec: spec,
		ai:   ai,
		cfg:  DefaultConfig(),
		log:  zerolog.Nop(),
	}
}

// WithConfig replaces the engine defaults.
func (e *Engine) WithConfig(cfg Config) *Engine {
	e.cfg = cfg
	return e
}

// WithLogger sets the operational logger.
func (e *Engine) WithLogger(log zerolog.Logger) *Engine {
	e.log = log.With().Str("converter", e.spec.Descriptor.ID()).Logger()
	return e
}

// WithBroadcaster publishes every conversion's events to b.
func (e *Engine) WithBroadcaster(b *events.Broadcaster) *Engine {
	e.broadcaster = b
	return e
}

// Descriptor returns the converter's descriptor.
func (e *Engine) Descriptor() model.Descriptor {
	return e.spec.Descriptor
}

// Convert runs the full lifecycle. The returned report is never nil.
// The error is non-nil only for fatal outcomes, including cancellation,
// and is the original cause.
func (e *Engine) Convert(ctx context.Context, req converter.Request) (*report.Report, error) {
	id := req.ConversionID
	if id == "" {
		id = uuid.NewString()
	}
	log := events.NewLogger(id)
	for _, o := range req.Observers {
		log.Subscribe(o)
	}
	if e.broadcaster != nil {
		detach := e.broadcaster.Attach(log)
		defer detach()
	}

	p := e.resolve(req)
	r := &run{
		engine: e,
		req:    req,
		params: p,
		log:    log,
		planner: planner.New(e.ai).
			WithLogger(log).
			WithTimeout(e.cfg.LLMTimeout),
		evaluator: evaluation.New(p.minPassScore).
			WithLogger(log).
			WithSpotCheckTimeout(e.cfg.LLMTimeout),
		best: -1,
		state: report.State{
			Descriptor:   e.spec.Descriptor,
			ConversionID: id,
			Started:      time.Now(),
			Chosen:       -1,
		},
	}
	return r.loop(ctx)
}

// Plan returns the strategy the first attempt would use.
func (e *Engine) Plan(ctx context.Context, req converter.Request) (string, error) {
	if err := req.Validate(e.spec.Descriptor); err != nil {
		return "", err
	}
	d := planner.New(e.ai).WithTimeout(e.cfg.LLMTimeout).Choose(ctx, planner.Input{
		Descriptor:   e.spec.Descriptor,
		InputSummary: e.spec.DescribeInput(req.Input, nil),
		Options:      req.Options,
		Environment:  req.Environment,
		Preferred:    req.Options.String(converter.StrategyOption, ""),
	})
	return d.Strategy, nil
}

// Execute runs one strategy in a fresh workspace, outside the retry loop.
func (e *Engine) Execute(ctx context.Context, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	timeout := e.cfg.ExecuteTimeout
	if e.spec.Timeout > 0 {
		timeout = e.spec.Timeout
	}
	return e.execute(ctx, nil, input, strategy, opts, timeout)
}

// Evaluate grades an output. Without a spot-check the result depends only
// on its arguments.
func (e *Engine) Evaluate(ctx context.Context, input, output model.Artifact, strategy string) model.Evaluation {
	return evaluation.New(e.cfg.MinPassScore).
		WithSpotCheckTimeout(e.cfg.LLMTimeout).
		Evaluate(ctx, input, output, strategy, e.spec.Checks, e.spotCheckFor(strategy, converter.SpotCheckAuto))
}

// spotCheckFor applies the spot-check policy: generative strategies and
// opted-in converters are checked under auto.
func (e *Engine) spotCheckFor(strategy string, policy converter.SpotCheckPolicy) converter.SpotCheckFunc {
	if e.spec.SpotCheck == nil {
		return nil
	}
	switch policy {
	case converter.SpotCheckNever:
		return nil
	case converter.SpotCheckAlways:
		return e.spec.SpotCheck
	}
	s, _ := e.spec.Descriptor.Strategy(strategy)
	if s.Mode == model.ModeGenerative || e.spec.SpotCheckOptIn {
		return e.spec.SpotCheck
	}
	return nil
}

// execute runs the converter body inside a scoped workspace with a timeout.
// The workspace is removed before execute returns, whatever the outcome.
func (e *Engine) execute(ctx context.Context, log *events.Logger, input model.Artifact, strategy string, opts converter.Options, timeout time.Duration) (res model.ExecuteResult, err error) {
	if !e.spec.Descriptor.HasStrategy(strategy) {
		return model.ExecuteResult{}, converter.InvalidInput("strategy %q is not declared by %s", strategy, e.spec.Descriptor.ID())
	}

	ws, err := converter.NewWorkspace(e.cfg.WorkspaceRoot)
	if err != nil {
		log.Log(events.LifecycleError, map[string]any{"phase": "workspace", "message": err.Error()})
		return model.ExecuteResult{}, converter.Crash("WORKSPACE_FAILED", err)
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			log.Log(events.LifecycleError, map[string]any{"phase": "cleanup", "message": rerr.Error()})
			e.log.Warn().Err(rerr).Str("dir", ws.Dir()).Msg("workspace cleanup failed")
		}
	}()

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err = safeExecute(execCtx, e.spec.Execute, ws, input, strategy, opts)
	elapsed := time.Since(start)

	var pe *panicError
	if errors.As(err, &pe) {
		log.Log(events.LifecycleError, map[string]any{"phase": "execute", "message": pe.Error()})
	}

	switch {
	case ctx.Err() != nil:
		return model.ExecuteResult{}, &converter.Error{Kind: converter.KindCancelled, Op: strategy, Err: ctx.Err()}
	case errors.Is(execCtx.Err(), context.DeadlineExceeded) && converter.CodeOf(err, "") != "EXECUTE_TIMEOUT":
		// A body that ignored ctx and finished late still timed out.
		cause := err
		if cause == nil {
			cause = execCtx.Err()
		}
		return model.ExecuteResult{}, converter.Timeout(strategy, cause)
	case err != nil:
		return model.ExecuteResult{}, err
	}

	// Outputs left inside the workspace would vanish on release.
	if res.Output.Path != "" && len(res.Output.Data) == 0 && within(ws.Dir(), res.Output.Path) {
		data, rerr := os.ReadFile(res.Output.Path)
		if rerr != nil {
			return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, rerr)
		}
		res.Output = model.BytesArtifact(data, res.Output.Format)
	}
	if res.Output.Format == "" {
		res.Output.Format = opts.Target
	}
	if res.Duration == 0 {
		res.Duration = elapsed
	}
	res.StrategyID = strategy
	return res, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// panicError carries a recovered panic from a converter body.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("execute panicked: %v", p.value)
}

func safeExecute(ctx context.Context, fn converter.ExecuteFunc, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (res model.ExecuteResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = converter.Crash(evaluation.CodeExecuteThrew, &panicError{value: r, stack: debug.Stack()})
		}
	}()
	return fn(ctx, ws, input, strategy, opts)
}

// errorPayload builds the execute:error payload. stack lists the wrap chain,
// or the goroutine stack for panics.
func errorPayload(err error) map[string]any {
	payload := map[string]any{
		"message": err.Error(),
		"kind":    converter.KindOf(err).String(),
		"code":    converter.CodeOf(err, evaluation.CodeExecuteThrew),
	}

	var pe *panicError
	if errors.As(err, &pe) {
		payload["stack"] = string(pe.stack)
	} else {
		var chain []string
		for e := err; e != nil; e = errors.Unwrap(e) {
			chain = append(chain, fmt.Sprintf("%T", e))
		}
		payload["stack"] = strings.Join(chain, " <- ")
	}

	var exitErr *subprocess.ExitError
	if errors.As(err, &exitErr) {
		payload["exitCode"] = exitErr.ExitCode
		payload["stderr"] = tail(exitErr.Stderr, 2048)
	}
	return payload
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
