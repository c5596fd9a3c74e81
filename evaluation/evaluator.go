package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
)

// Evaluator runs structural checks and the optional spot-check for one
// conversion, logging to that conversion's event log.
type Evaluator struct {
	minPassScore     int
	spotCheckTimeout time.Duration
	log              *events.Logger
}

// New creates an evaluator with the given pass threshold.
func New(minPassScore int) *Evaluator {
	return &Evaluator{minPassScore: minPassScore}
}

// WithLogger sets the event log. A nil logger discards events.
func (e *Evaluator) WithLogger(log *events.Logger) *Evaluator {
	e.log = log
	return e
}

// WithSpotCheckTimeout bounds the LLM spot-check independently of execute.
func (e *Evaluator) WithSpotCheckTimeout(d time.Duration) *Evaluator {
	e.spotCheckTimeout = d
	return e
}

// MinPassScore returns the pass threshold.
func (e *Evaluator) MinPassScore() int {
	return e.minPassScore
}

// Evaluate grades output. checks must be pure; spot may be nil. With spot nil
// the result depends only on (input, output, strategy).
func (e *Evaluator) Evaluate(ctx context.Context, input, output model.Artifact, strategy string, checks converter.ChecksFunc, spot converter.SpotCheckFunc) model.Evaluation {
	e.log.Log(events.Evaluate, map[string]any{"strategy": strategy})
	e.log.Log(events.EvaluateStruct, nil)

	issues, err := runChecks(checks, input, output, strategy)
	if err != nil {
		issue := Error(CodeEvaluationFailed, err.Error(), true)
		e.logIssue(issue)
		ev := model.Evaluation{Issues: []model.Issue{issue}, Score: 0, Pass: false}
		e.log.Log(events.EvaluateDone, map[string]any{"pass": false, "score": 0})
		return ev
	}
	for _, issue := range issues {
		e.logIssue(issue)
	}

	var llmScore *int
	if spot != nil {
		llmScore = e.spotCheck(ctx, input, output, spot)
	}

	ev := Build(issues, llmScore, e.minPassScore)
	e.log.Log(events.EvaluateDone, map[string]any{"pass": ev.Pass, "score": ev.Score})
	return ev
}

func (e *Evaluator) logIssue(issue model.Issue) {
	e.log.Log(events.EvaluateIssue, map[string]any{
		"code":     issue.Code,
		"severity": string(issue.Severity),
		"fixable":  issue.Fixable,
	})
}

// spotCheck returns nil when the check fails; failures are advisory.
func (e *Evaluator) spotCheck(ctx context.Context, input, output model.Artifact, spot converter.SpotCheckFunc) *int {
	e.log.Log(events.LLMCall, map[string]any{"feature": "spot-check"})

	if e.spotCheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.spotCheckTimeout)
		defer cancel()
	}

	score, err := runSpotCheck(ctx, spot, input, output)
	if err != nil {
		e.log.Log(events.LLMError, map[string]any{"feature": "spot-check", "message": err.Error()})
		return nil
	}
	score = clamp(score)
	return &score
}

func runChecks(checks converter.ChecksFunc, input, output model.Artifact, strategy string) (issues []model.Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &converter.Error{Kind: converter.KindEvaluationFailure, Code: CodeEvaluationFailed, Err: fmt.Errorf("structural checks panicked: %v", r)}
		}
	}()
	return checks(input, output, strategy), nil
}

func runSpotCheck(ctx context.Context, spot converter.SpotCheckFunc, input, output model.Artifact) (score int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("spot-check panicked: %v", r)
		}
	}()
	return spot(ctx, input, output)
}
