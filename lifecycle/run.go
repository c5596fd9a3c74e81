package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/diagnosis"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/planner"
	"github.com/richinex/transmute/report"
)

// run is the mutable state of one conversion. It never outlives Convert.
type run struct {
	engine    *Engine
	req       converter.Request
	params    params
	log       *events.Logger
	planner   *planner.Planner
	evaluator *evaluation.Evaluator
	state     report.State
	best      int
}

func (r *run) loop(ctx context.Context) (*report.Report, error) {
	desc := r.engine.spec.Descriptor
	r.log.Log(events.Start, map[string]any{
		"agentId":      desc.ID(),
		"conversionId": r.state.ConversionID,
		"converter":    desc.Name(),
	})
	r.log.Log(events.Config, map[string]any{
		"maxAttempts":      r.params.maxAttempts,
		"minPassScore":     r.params.minPassScore,
		"qualityThreshold": r.params.qualityThreshold,
		"executeTimeoutMs": r.params.executeTimeout.Milliseconds(),
		"spotCheck":        string(r.params.spotCheck),
		"llm":              r.engine.ai.Name(),
	})

	if err := r.req.Validate(desc); err != nil {
		return r.fatal(ctx, err)
	}

	for n := 1; n <= r.params.maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return r.cancelled(err)
		}

		r.log.Log(events.Attempt, map[string]any{"attempt": n, "maxAttempts": r.params.maxAttempts})
		r.log.Log(events.Plan, map[string]any{"attempt": n})
		decision := r.planner.Choose(ctx, planner.Input{
			Descriptor:   desc,
			InputSummary: r.engine.spec.DescribeInput(r.req.Input, r.lastMetadata()),
			Options:      r.req.Options,
			Attempts:     r.state.Attempts,
			Environment:  r.req.Environment,
			Preferred:    r.req.Options.String(converter.StrategyOption, ""),
		})
		if err := ctx.Err(); err != nil {
			return r.cancelled(err)
		}

		attempt, err := r.attempt(ctx, n, decision)
		if cerr := ctx.Err(); cerr != nil {
			return r.cancelled(cerr)
		}
		r.state.Attempts = append(r.state.Attempts, attempt)
		if err != nil {
			return r.fatal(ctx, err)
		}
		r.trackBest()

		ev := *attempt.Evaluation
		switch {
		case ev.Pass:
			return r.succeed(ctx, len(r.state.Attempts)-1)
		case !evaluation.ShouldRetry(ev, r.params.minPassScore):
			r.log.Log(events.NoFixable, map[string]any{"attempt": n, "score": ev.Score})
			return r.fail(ctx, model.OutcomeNoFixable, "no fixable issue remains")
		case n < r.params.maxAttempts:
			r.log.Log(events.Retry, map[string]any{
				"attempt":      n,
				"nextStrategy": planner.Preview(desc, r.state.Attempts),
			})
		}
	}
	return r.exhaust(ctx)
}

// attempt executes and evaluates one planned strategy. A non-nil error is fatal.
func (r *run) attempt(ctx context.Context, n int, d planner.Decision) (model.Attempt, error) {
	a := model.Attempt{Number: n, Strategy: d.Strategy, Method: string(d.Method)}
	start := time.Now()

	r.log.Log(events.Execute, map[string]any{"strategy": d.Strategy, "attempt": n})
	res, err := r.engine.execute(ctx, r.log, r.req.Input, d.Strategy, r.req.Options, r.params.executeTimeout)
	if err != nil {
		a.Duration = time.Since(start)
		if ctx.Err() != nil {
			return a, err
		}
		r.log.Log(events.ExecuteError, errorPayload(err))
		a.Error = err.Error()
		fatal := converter.IsFatal(err)
		issue := evaluation.Error(converter.CodeOf(err, evaluation.CodeExecuteThrew), err.Error(), !fatal)
		a.Evaluation = &model.Evaluation{Issues: []model.Issue{issue}, Score: 0, Pass: false}
		r.engine.log.Debug().
			Str("conversion_id", r.state.ConversionID).
			Str("strategy", d.Strategy).
			Err(err).
			Msg("execute failed")
		if fatal {
			return a, err
		}
		return a, nil
	}

	r.log.Log(events.ExecuteDone, map[string]any{
		"strategy":   d.Strategy,
		"durationMs": res.Duration.Milliseconds(),
		"size":       res.Output.Size(),
	})
	a.Result = &res

	ev := r.evaluator.Evaluate(ctx, r.req.Input, res.Output, d.Strategy,
		r.engine.spec.Checks, r.engine.spotCheckFor(d.Strategy, r.params.spotCheck))
	a.Evaluation = &ev
	a.Duration = time.Since(start)

	r.engine.log.Debug().
		Str("conversion_id", r.state.ConversionID).
		Str("strategy", d.Strategy).
		Int("score", ev.Score).
		Bool("pass", ev.Pass).
		Msg("attempt evaluated")
	return a, nil
}

func (r *run) lastMetadata() map[string]any {
	for i := len(r.state.Attempts) - 1; i >= 0; i-- {
		if res := r.state.Attempts[i].Result; res != nil && res.Metadata != nil {
			return res.Metadata
		}
	}
	return nil
}

func (r *run) trackBest() {
	best := model.BestAttempt(r.state.Attempts)
	if best < 0 || best == r.best {
		return
	}
	r.best = best
	a := r.state.Attempts[best]
	r.log.Log(events.BestUpdated, map[string]any{"attempt": a.Number, "score": a.Score(), "strategy": a.Strategy})
}

func (r *run) succeed(ctx context.Context, i int) (*report.Report, error) {
	a := r.state.Attempts[i]
	out := a.Result.Output
	r.state.Outcome = model.OutcomeSuccess
	r.state.Chosen = i
	r.state.Output = &out
	r.state.Reason = fmt.Sprintf("passed with score %d", a.Score())

	if a.Score() < r.params.qualityThreshold {
		r.diagnose(ctx)
	}
	r.log.Log(events.Success, map[string]any{"strategy": a.Strategy, "score": a.Score(), "attempt": a.Number})
	return r.finish(), nil
}

// fail ends a non-fatal run with the best artifact, if any.
func (r *run) fail(ctx context.Context, outcome model.Outcome, reason string) (*report.Report, error) {
	r.state.Outcome = outcome
	r.state.Reason = reason
	r.state.Chosen = r.best
	if r.best >= 0 && r.state.Output == nil {
		if res := r.state.Attempts[r.best].Result; res != nil {
			out := res.Output
			r.state.Output = &out
		}
	}

	r.diagnose(ctx)
	r.log.Log(events.Fail, map[string]any{"reason": string(outcome), "message": reason})
	return r.finish(), nil
}

// exhaust returns the best attempt's artifact, re-executing its strategy
// once when that attempt produced none. The re-run is not an attempt.
func (r *run) exhaust(ctx context.Context) (*report.Report, error) {
	payload := map[string]any{"attempts": len(r.state.Attempts)}
	if r.best >= 0 {
		best := r.state.Attempts[r.best]
		payload["bestAttempt"] = best.Number
		payload["strategy"] = best.Strategy
		payload["score"] = best.Score()
	}
	r.log.Log(events.PlanExhausted, payload)

	if r.best >= 0 && r.state.Attempts[r.best].Result == nil {
		strategy := r.state.Attempts[r.best].Strategy
		r.log.Log(events.Execute, map[string]any{"strategy": strategy, "rerun": true})
		res, err := r.engine.execute(ctx, r.log, r.req.Input, strategy, r.req.Options, r.params.executeTimeout)
		if cerr := ctx.Err(); cerr != nil {
			return r.cancelled(cerr)
		}
		if err != nil {
			r.log.Log(events.ExecuteError, errorPayload(err))
		} else {
			r.log.Log(events.ExecuteDone, map[string]any{
				"strategy":   strategy,
				"durationMs": res.Duration.Milliseconds(),
				"size":       res.Output.Size(),
				"rerun":      true,
			})
			out := res.Output
			r.state.Output = &out
		}
	}
	return r.fail(ctx, model.OutcomeExhaustedAccepted, "attempt budget exhausted; returning best attempt")
}

func (r *run) fatal(ctx context.Context, err error) (*report.Report, error) {
	r.state.Outcome = model.OutcomeFatal
	r.state.Err = err
	r.state.Reason = err.Error()
	r.state.Chosen = -1

	r.diagnose(ctx)
	r.log.Log(events.Fail, map[string]any{
		"reason":  string(model.OutcomeFatal),
		"kind":    converter.KindOf(err).String(),
		"message": err.Error(),
	})
	return r.finish(), err
}

// cancelled discards any artifact and skips diagnosis; fail is the last event.
func (r *run) cancelled(cause error) (*report.Report, error) {
	err := &converter.Error{Kind: converter.KindCancelled, Code: "CANCELLED", Err: cause}
	r.state.Outcome = model.OutcomeCancelled
	r.state.Err = err
	r.state.Reason = "cancelled"
	r.state.Output = nil

	r.log.Log(events.Fail, map[string]any{"reason": string(model.OutcomeCancelled)})
	return r.finish(), err
}

func (r *run) diagnose(ctx context.Context) {
	pre := report.Assemble(r.state, r.log)
	d := diagnosis.New(r.engine.ai).
		WithLogger(r.log).
		Diagnose(ctx, r.engine.spec.Descriptor, pre, r.req.Input)
	r.state.Diagnosis = &d
}

func (r *run) finish() *report.Report {
	r.state.Finished = time.Now()
	rep := report.Assemble(r.state, r.log)

	entry := r.engine.log.Info()
	if rep.Outcome != model.OutcomeSuccess {
		entry = r.engine.log.Warn()
	}
	entry.
		Str("conversion_id", rep.ConversionID).
		Str("outcome", string(rep.Outcome)).
		Str("strategy", rep.Decision.StrategyUsed).
		Int("attempts", len(rep.Attempts)).
		Int("score", rep.Decision.Score).
		Dur("duration", rep.Duration).
		Msg("conversion finished")
	return rep
}
