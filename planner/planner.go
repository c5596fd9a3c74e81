// Package planner chooses the strategy for each attempt of a conversion.
//
// Information Hiding:
// - Prompt construction and LLM reply validation
// - Tie-breaks between suggestions, LLM picks and declaration order
// - Exhaustion handling (re-choosing the best past strategy)

package planner

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
)

// Method records how a strategy was chosen.
type Method string

const (
	MethodLLM      Method = "llm"
	MethodFallback Method = "fallback"
	MethodSingle   Method = "single-strategy"
)

// Decision is the planner's pick for one attempt.
type Decision struct {
	Strategy string
	Method   Method
	Reason   string
}

// Input is everything the planner may look at.
type Input struct {
	Descriptor   model.Descriptor
	InputSummary string
	Options      converter.Options
	Attempts     []model.Attempt
	Environment  map[string]string
	// Preferred is honoured on the first attempt when declared.
	Preferred string
}

// Planner picks strategies, asking the LLM when one is available.
type Planner struct {
	ai      *llm.Facade
	log     *events.Logger
	timeout time.Duration
}

// New creates a planner. A nil or unavailable facade means deterministic planning.
func New(ai *llm.Facade) *Planner {
	return &Planner{ai: ai}
}

// WithLogger sets the event log.
func (p *Planner) WithLogger(log *events.Logger) *Planner {
	p.log = log
	return p
}

// WithTimeout bounds the planner's LLM call.
func (p *Planner) WithTimeout(d time.Duration) *Planner {
	p.timeout = d
	return p
}

// Choose picks the strategy for the next attempt and logs the decision.
// The returned strategy is always declared by in.Descriptor.
func (p *Planner) Choose(ctx context.Context, in Input) Decision {
	d := p.choose(ctx, in)
	payload := map[string]any{"strategy": d.Strategy, "method": string(d.Method)}
	if d.Reason != "" {
		payload["reason"] = d.Reason
	}
	p.log.Log(events.PlanSelected, payload)
	return d
}

func (p *Planner) choose(ctx context.Context, in Input) Decision {
	declared := in.Descriptor.StrategyIDs()
	if len(declared) == 1 {
		return Decision{Strategy: declared[0], Method: MethodSingle}
	}
	if len(in.Attempts) == 0 && in.Preferred != "" && in.Descriptor.HasStrategy(in.Preferred) {
		p.log.Log(events.PlanFallback, map[string]any{"reason": "requested by caller"})
		return Decision{Strategy: in.Preferred, Method: MethodFallback, Reason: "requested by caller"}
	}

	untried := Untried(in.Descriptor, in.Attempts)
	if len(untried) == 0 {
		p.log.Log(events.PlanExhausted, map[string]any{"tried": len(in.Attempts)})
		return Decision{Strategy: bestStrategy(declared, in.Attempts), Method: MethodFallback, Reason: "all strategies tried; reusing best"}
	}

	if s := suggested(in.Descriptor, in.Attempts, untried); s != "" {
		return Decision{Strategy: s, Method: MethodFallback, Reason: "suggested by previous evaluation"}
	}

	if !p.ai.Available() {
		p.log.Log(events.PlanFallback, map[string]any{"reason": "llm unavailable"})
		return Decision{Strategy: untried[0], Method: MethodFallback, Reason: "llm unavailable"}
	}

	strategy, reason, err := p.askLLM(ctx, in, untried)
	if err != nil {
		p.log.Log(events.PlanFallback, map[string]any{"reason": err.Error()})
		return Decision{Strategy: untried[0], Method: MethodFallback, Reason: err.Error()}
	}
	return Decision{Strategy: strategy, Method: MethodLLM, Reason: reason}
}

// Preview returns the strategy deterministic planning would pick next,
// without logging. Used to announce retries.
func Preview(desc model.Descriptor, attempts []model.Attempt) string {
	declared := desc.StrategyIDs()
	if len(declared) == 1 {
		return declared[0]
	}
	untried := Untried(desc, attempts)
	if len(untried) == 0 {
		return bestStrategy(declared, attempts)
	}
	if s := suggested(desc, attempts, untried); s != "" {
		return s
	}
	return untried[0]
}

// Untried lists implemented strategies with no attempt yet, in declaration
// order. Stubs are never offered.
func Untried(desc model.Descriptor, attempts []model.Attempt) []string {
	tried := make(map[string]bool, len(attempts))
	for _, a := range attempts {
		tried[a.Strategy] = true
	}
	var out []string
	for _, id := range desc.PlannableIDs() {
		if !tried[id] {
			out = append(out, id)
		}
	}
	return out
}

// suggested returns the previous failed attempt's suggestion when it is
// declared and untried.
func suggested(desc model.Descriptor, attempts []model.Attempt, untried []string) string {
	if len(attempts) == 0 {
		return ""
	}
	last := attempts[len(attempts)-1]
	if last.Evaluation == nil || last.Evaluation.Pass {
		return ""
	}
	for _, issue := range last.Evaluation.Issues {
		s := issue.SuggestedStrategy
		if s != "" && desc.HasStrategy(s) && slices.Contains(untried, s) {
			return s
		}
	}
	return ""
}

func bestStrategy(declared []string, attempts []model.Attempt) string {
	if i := model.BestAttempt(attempts); i >= 0 {
		return attempts[i].Strategy
	}
	return declared[0]
}

type llmChoice struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

func (p *Planner) askLLM(ctx context.Context, in Input, untried []string) (string, string, error) {
	p.log.Log(events.LLMCall, map[string]any{"feature": "plan"})

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var choice llmChoice
	err := p.ai.JSON(ctx, buildPrompt(in, untried), llm.JSONOptions{
		Profile:     "planner",
		Feature:     "plan",
		Temperature: llm.Float32(0),
		MaxTokens:   300,
	}, &choice)
	if err != nil {
		p.log.Log(events.LLMError, map[string]any{"feature": "plan", "message": err.Error()})
		return "", "", fmt.Errorf("llm plan failed: %w", err)
	}

	id := strings.TrimSpace(choice.Strategy)
	switch {
	case id == "":
		return "", "", fmt.Errorf("llm returned no strategy")
	case !in.Descriptor.HasStrategy(id):
		return "", "", fmt.Errorf("llm returned unknown strategy %q", id)
	case !slices.Contains(untried, id):
		return "", "", fmt.Errorf("llm returned already-tried strategy %q", id)
	}
	return id, choice.Reason, nil
}

func buildPrompt(in Input, untried []string) string {
	var b strings.Builder
	desc := in.Descriptor

	fmt.Fprintf(&b, "Converter: %s (%s)\n%s\n\n", desc.Name(), desc.ID(), desc.Description())
	fmt.Fprintf(&b, "Input: %s\nTarget format: %s\n", in.InputSummary, in.Options.Target)
	if len(in.Options.Values) > 0 {
		keys := make([]string, 0, len(in.Options.Values))
		for k := range in.Options.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Options:")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, in.Options.Values[k])
		}
		b.WriteString("\n")
	}
	if len(in.Environment) > 0 {
		keys := make([]string, 0, len(in.Environment))
		for k := range in.Environment {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Environment:")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, in.Environment[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("\nAvailable strategies (not yet tried):\n")
	for _, id := range untried {
		s, _ := desc.Strategy(id)
		fmt.Fprintf(&b, "- %s: %s. When: %s. Engine: %s, mode %s, speed %s, quality %s.\n",
			s.ID, s.Description, s.When, s.Engine, s.Mode, s.Speed, s.Quality)
	}

	if len(in.Attempts) > 0 {
		b.WriteString("\nPrevious attempts:\n")
		for _, a := range in.Attempts {
			fmt.Fprintf(&b, "- #%d %s: score %d", a.Number, a.Strategy, a.Score())
			if a.Error != "" {
				fmt.Fprintf(&b, ", error: %s", truncate(a.Error, 200))
			}
			if a.Evaluation != nil {
				for _, issue := range a.Evaluation.Issues {
					fmt.Fprintf(&b, ", %s(%s)", issue.Code, issue.Severity)
				}
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Pick exactly one strategy id from the list above.
Reply as {"strategy": "<id>", "reason": "<one sentence>"}.`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
