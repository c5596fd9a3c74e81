package events

// Name is an event name from the closed taxonomy below.
type Name string

const (
	Start          Name = "converter:start"
	Config         Name = "converter:config"
	Attempt        Name = "converter:attempt"
	Plan           Name = "converter:plan"
	PlanSelected   Name = "converter:plan:selected"
	PlanFallback   Name = "converter:plan:fallback"
	PlanExhausted  Name = "converter:plan:exhausted"
	Execute        Name = "converter:execute"
	ExecuteDone    Name = "converter:execute:done"
	ExecuteError   Name = "converter:execute:error"
	Evaluate       Name = "converter:evaluate"
	EvaluateStruct Name = "converter:evaluate:structural"
	EvaluateIssue  Name = "converter:evaluate:issue"
	EvaluateDone   Name = "converter:evaluate:done"
	Retry          Name = "converter:retry"
	BestUpdated    Name = "converter:best-updated"
	NoFixable      Name = "converter:no-fixable"
	LLMCall        Name = "converter:llm:call"
	LLMError       Name = "converter:llm:error"
	LifecycleError Name = "converter:lifecycle-error"
	Success        Name = "converter:success"
	Fail           Name = "converter:fail"
)

// Taxonomy lists every valid event name.
var Taxonomy = []Name{
	Start, Config, Attempt, Plan, PlanSelected, PlanFallback, PlanExhausted,
	Execute, ExecuteDone, ExecuteError, Evaluate, EvaluateStruct, EvaluateIssue,
	EvaluateDone, Retry, BestUpdated, NoFixable, LLMCall, LLMError,
	LifecycleError, Success, Fail,
}

// Known reports whether name belongs to the taxonomy.
func Known(name Name) bool {
	for _, n := range Taxonomy {
		if n == name {
			return true
		}
	}
	return false
}
