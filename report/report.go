// Package report assembles the immutable result of one conversion.
//
// Information Hiding:
// - Best-attempt selection for the final decision
// - Copying of attempts and events so callers own the result

package report

import (
	"slices"
	"time"

	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
)

// Decision explains which strategy's output the caller received and why.
// On success it points at the passing attempt, even when an earlier failed
// attempt scored higher; otherwise it points at the best-scoring attempt
// (earliest on ties).
type Decision struct {
	StrategyUsed string `json:"strategyUsed"`
	Reason       string `json:"reason"`
	RetryCount   int    `json:"retryCount"`
	Score        int    `json:"score"`
	// Attempt is the 1-based number of the attempt the decision points at; 0 when none.
	Attempt int `json:"attempt"`
}

// Report is the single externally observable result of a conversion.
type Report struct {
	ConverterID   string            `json:"converterId"`
	ConverterName string            `json:"converterName"`
	ConversionID  string            `json:"conversionId"`
	Outcome       model.Outcome     `json:"outcome"`
	Duration      time.Duration     `json:"durationNs"`
	Attempts      []model.Attempt   `json:"attempts"`
	Decision      Decision          `json:"decision"`
	Output        *model.Artifact   `json:"output,omitempty"`
	Evaluation    *model.Evaluation `json:"evaluation,omitempty"`
	Events        []events.Event    `json:"events"`
	Diagnosis     *model.Diagnosis  `json:"diagnosis,omitempty"`
	// Err is the fatal cause, unchanged. Error is its message for serialization.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the conversion passed its gate.
func (r *Report) Succeeded() bool {
	return r.Outcome == model.OutcomeSuccess
}

// Status returns "succeeded" or "failed"; cancelled runs are "cancelled".
func (r *Report) Status() string {
	switch r.Outcome {
	case model.OutcomeSuccess:
		return "succeeded"
	case model.OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// State is the lifecycle engine's final bookkeeping.
type State struct {
	Descriptor   model.Descriptor
	ConversionID string
	Started      time.Time
	Finished     time.Time
	Attempts     []model.Attempt
	Outcome      model.Outcome
	// Chosen indexes the attempt whose output is returned; -1 selects the best.
	Chosen    int
	Output    *model.Artifact
	Reason    string
	Err       error
	Diagnosis *model.Diagnosis
}

// Assemble builds a Report from final state and the event log's snapshot.
func Assemble(s State, log *events.Logger) *Report {
	attempts := slices.Clone(s.Attempts)
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	finished := s.Finished
	if finished.IsZero() {
		finished = time.Now()
	}

	r := &Report{
		ConverterID:   s.Descriptor.ID(),
		ConverterName: s.Descriptor.Name(),
		ConversionID:  s.ConversionID,
		Outcome:       s.Outcome,
		Duration:      finished.Sub(s.Started),
		Attempts:      attempts,
		Events:        log.Snapshot(),
		Err:           s.Err,
	}
	if r.Events == nil {
		r.Events = []events.Event{}
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	if s.Output != nil {
		out := *s.Output
		r.Output = &out
	}
	if s.Diagnosis != nil {
		d := *s.Diagnosis
		d.Fixes = slices.Clone(d.Fixes)
		d.AffectedAxes = slices.Clone(d.AffectedAxes)
		r.Diagnosis = &d
	}

	chosen := s.Chosen
	if chosen < 0 || chosen >= len(attempts) {
		chosen = model.BestAttempt(attempts)
	}
	r.Decision = Decision{Reason: s.Reason}
	if len(attempts) > 0 {
		r.Decision.RetryCount = len(attempts) - 1
	}
	if chosen >= 0 {
		a := attempts[chosen]
		r.Decision.StrategyUsed = a.Strategy
		r.Decision.Attempt = a.Number
		r.Decision.Score = a.Score()
		if a.Evaluation != nil {
			ev := *a.Evaluation
			r.Evaluation = &ev
		}
	}
	return r
}

// BestScore returns the highest evaluated score, or -1.
func (r *Report) BestScore() int {
	if i := model.BestAttempt(r.Attempts); i >= 0 {
		return r.Attempts[i].Score()
	}
	return -1
}

// IssueCodes returns every issue code seen across attempts, in first-seen order.
func (r *Report) IssueCodes() []string {
	var codes []string
	for _, a := range r.Attempts {
		if a.Evaluation == nil {
			continue
		}
		for _, issue := range a.Evaluation.Issues {
			if !slices.Contains(codes, issue.Code) {
				codes = append(codes, issue.Code)
			}
		}
	}
	return codes
}
