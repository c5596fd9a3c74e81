// Package diagnosis explains failed or low-quality conversions.
//
// Information Hiding:
// - Canned issue-code patterns and their fixes
// - Severity grading from attempt history
// - Merging of LLM suggestions behind pattern fixes

package diagnosis

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/report"
)

// Sources recorded on a Diagnosis.
const (
	SourcePatterns = "patterns"
	SourceLLM      = "llm"
	SourceMerged   = "patterns+llm"
)

// Engine produces a Diagnosis from a final report.
type Engine struct {
	ai  *llm.Facade
	log *events.Logger
}

// New creates a diagnostic engine. A nil or unavailable facade limits it to patterns.
func New(ai *llm.Facade) *Engine {
	return &Engine{ai: ai}
}

// WithLogger sets the event log that receives llm:call and llm:error.
func (e *Engine) WithLogger(log *events.Logger) *Engine {
	e.log = log
	return e
}

// Diagnose infers a root cause, a severity and ranked fixes.
func (e *Engine) Diagnose(ctx context.Context, desc model.Descriptor, rep *report.Report, input model.Artifact) model.Diagnosis {
	counts := codeCounts(rep)
	matched := match(counts)

	d := model.Diagnosis{
		Severity:     Severity(rep.Attempts),
		AffectedAxes: []string{},
		Fixes:        []model.Fix{},
		Source:       SourcePatterns,
	}
	for _, p := range matched {
		for _, axis := range p.axes {
			if !slices.Contains(d.AffectedAxes, axis) {
				d.AffectedAxes = append(d.AffectedAxes, axis)
			}
		}
		d.Fixes = append(d.Fixes, p.fixes(desc)...)
		if d.AlternativeRoute == "" {
			d.AlternativeRoute = p.alternative(desc)
		}
	}
	sortFixes(d.Fixes)
	d.Fixes = dedup(d.Fixes)

	if len(matched) > 0 {
		d.RootCause = matched[0].cause
	} else {
		d.RootCause = genericCause(rep, counts)
	}

	if e.ai.Available() {
		if advice, err := e.ask(ctx, desc, rep, input); err == nil {
			e.merge(&d, desc, advice, len(matched) > 0)
		}
	}
	return d
}

// Severity grades a run: critical when nothing structurally valid came out,
// otherwise by the best score.
func Severity(attempts []model.Attempt) model.DiagnosisSeverity {
	valid := false
	for _, a := range attempts {
		if a.StructurallyValid() {
			valid = true
			break
		}
	}
	if !valid {
		return model.DiagnosisCritical
	}
	best := attempts[model.BestAttempt(attempts)].Score()
	switch {
	case best < 30:
		return model.DiagnosisHigh
	case best < 50:
		return model.DiagnosisMedium
	default:
		return model.DiagnosisLow
	}
}

func codeCounts(rep *report.Report) map[string]int {
	counts := make(map[string]int)
	for _, a := range rep.Attempts {
		if a.Evaluation == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, issue := range a.Evaluation.Issues {
			if !seen[issue.Code] {
				counts[issue.Code]++
				seen[issue.Code] = true
			}
		}
	}
	if rep.Err != nil {
		if code := converter.CodeOf(rep.Err, ""); code != "" && counts[code] == 0 {
			counts[code] = 1
		}
	}
	return counts
}

// match returns the patterns present in counts, most frequent first,
// table order on ties.
func match(counts map[string]int) []pattern {
	var out []pattern
	for _, p := range patterns {
		if p.hits(counts) > 0 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].hits(counts) > out[j].hits(counts)
	})
	return out
}

func genericCause(rep *report.Report, counts map[string]int) string {
	if rep.Succeeded() {
		return "output passed the gate but scored below the quality threshold"
	}
	top, n := "", 0
	for _, code := range rep.IssueCodes() {
		if counts[code] > n {
			top, n = code, counts[code]
		}
	}
	if top == "" {
		return "conversion failed without a recognised issue pattern"
	}
	return fmt.Sprintf("recurring %s issue across %d attempt(s)", top, n)
}

func sortFixes(fixes []model.Fix) {
	sort.SliceStable(fixes, func(i, j int) bool {
		return fixes[i].Confidence > fixes[j].Confidence
	})
}

func dedup(fixes []model.Fix) []model.Fix {
	seen := make(map[string]bool, len(fixes))
	out := fixes[:0]
	for _, f := range fixes {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out
}

type llmFix struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Strategy    string  `json:"strategy"`
}

type llmAdvice struct {
	RootCause        string   `json:"rootCause"`
	AffectedAxes     []string `json:"affectedAxes"`
	Fixes            []llmFix `json:"fixes"`
	AlternativeRoute string   `json:"alternativeRoute"`
}

func (e *Engine) ask(ctx context.Context, desc model.Descriptor, rep *report.Report, input model.Artifact) (llmAdvice, error) {
	e.log.Log(events.LLMCall, map[string]any{"feature": "diagnose"})

	var advice llmAdvice
	err := e.ai.JSON(ctx, buildPrompt(desc, rep, input), llm.JSONOptions{
		Profile:   "analyst",
		Feature:   "diagnose",
		MaxTokens: 800,
	}, &advice)
	if err != nil {
		e.log.Log(events.LLMError, map[string]any{"feature": "diagnose", "message": err.Error()})
		return llmAdvice{}, err
	}
	return advice, nil
}

// merge appends LLM fixes after pattern fixes. LLM output is untrusted:
// fixes without an id are dropped and undeclared strategies are cleared.
func (e *Engine) merge(d *model.Diagnosis, desc model.Descriptor, advice llmAdvice, patternsMatched bool) {
	added := false
	seen := make(map[string]bool, len(d.Fixes))
	for _, f := range d.Fixes {
		seen[f.ID] = true
	}

	var extra []model.Fix
	for _, f := range advice.Fixes {
		id := strings.TrimSpace(f.ID)
		if id == "" || strings.TrimSpace(f.Description) == "" || seen[id] {
			continue
		}
		seen[id] = true
		fix := model.Fix{ID: id, Description: f.Description, Confidence: clampUnit(f.Confidence)}
		if f.Strategy != "" && desc.HasStrategy(f.Strategy) {
			fix.Strategy = f.Strategy
		}
		extra = append(extra, fix)
	}
	if len(extra) > 0 {
		sortFixes(extra)
		d.Fixes = append(d.Fixes, extra...)
		added = true
	}

	if !patternsMatched && strings.TrimSpace(advice.RootCause) != "" {
		d.RootCause = strings.TrimSpace(advice.RootCause)
		added = true
	}
	if d.AlternativeRoute == "" && advice.AlternativeRoute != "" {
		d.AlternativeRoute = advice.AlternativeRoute
		added = true
	}
	for _, axis := range advice.AffectedAxes {
		if axis != "" && !slices.Contains(d.AffectedAxes, axis) {
			d.AffectedAxes = append(d.AffectedAxes, axis)
		}
	}

	switch {
	case !added:
	case patternsMatched:
		d.Source = SourceMerged
	default:
		d.Source = SourceLLM
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func buildPrompt(desc model.Descriptor, rep *report.Report, input model.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Converter: %s (%s), %s to %s\n", desc.Name(), desc.ID(),
		strings.Join(desc.From(), "/"), strings.Join(desc.To(), "/"))
	fmt.Fprintf(&b, "Input: format %s, %d bytes\n", input.Format, input.Size())
	fmt.Fprintf(&b, "Outcome: %s\n", rep.Outcome)
	if rep.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rep.Error)
	}

	b.WriteString("\nAttempts:\n")
	for _, a := range rep.Attempts {
		fmt.Fprintf(&b, "- #%d %s: score %d", a.Number, a.Strategy, a.Score())
		if a.Error != "" {
			fmt.Fprintf(&b, ", error: %s", a.Error)
		}
		if a.Evaluation != nil {
			for _, issue := range a.Evaluation.Issues {
				fmt.Fprintf(&b, "\n    %s %s: %s", issue.Severity, issue.Code, issue.Message)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nDeclared strategies: ")
	b.WriteString(strings.Join(desc.StrategyIDs(), ", "))
	b.WriteString(`

Explain why this conversion failed or scored low. Reply as JSON:
{"rootCause": "...", "affectedAxes": ["..."], "fixes": [{"id": "kebab-case-id", "description": "...", "confidence": 0.0-1.0, "strategy": "<optional declared strategy>"}], "alternativeRoute": "..."}`)
	return b.String()
}
