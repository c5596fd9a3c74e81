// Package orchestration runs many independent conversions together.
//
// Types shared by the batch runner and its callers.
package orchestration

import (
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/report"
)

// Job is one conversion in a batch. An empty Converter is resolved from
// the input format and target through the registry.
type Job struct {
	Converter string
	Request   converter.Request
}

// Result is the outcome of one job. Report is nil only when the job
// could not be routed to a converter.
type Result struct {
	Index     int
	Converter string
	Report    *report.Report
	Err       error
	Duration  time.Duration
}

// Succeeded reports whether the job produced an accepted output.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.Report != nil && r.Report.Succeeded()
}

// Summary counts results by status.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	Unrouted  int
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Report == nil:
			s.Unrouted++
		case r.Report.Status() == "succeeded":
			s.Succeeded++
		case r.Report.Status() == "cancelled":
			s.Cancelled++
		default:
			s.Failed++
		}
	}
	return s
}
