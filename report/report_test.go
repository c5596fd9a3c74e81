package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
)

func testDescriptor() model.Descriptor {
	return model.NewDescriptor(model.DescriptorSpec{
		ID: "csv-to-json", Name: "CSV to JSON", From: []string{"csv"}, To: []string{"json"},
		Strategies: []model.Strategy{{ID: "auto-type"}, {ID: "string-only"}},
	})
}

func evaluated(n int, strategy string, score int, pass bool) model.Attempt {
	return model.Attempt{
		Number:     n,
		Strategy:   strategy,
		Result:     &model.ExecuteResult{Output: model.BytesArtifact([]byte(strategy), "json")},
		Evaluation: &model.Evaluation{Score: score, Pass: pass},
	}
}

func TestAssembleDecisionPointsAtBest(t *testing.T) {
	log := events.NewLogger("c1")
	log.Log(events.Start, nil)
	started := time.Now().Add(-time.Second)

	attempts := []model.Attempt{evaluated(1, "auto-type", 60, false), evaluated(2, "string-only", 60, false)}
	r := Assemble(State{
		Descriptor:   testDescriptor(),
		ConversionID: "c1",
		Started:      started,
		Finished:     started.Add(time.Second),
		Attempts:     attempts,
		Outcome:      model.OutcomeExhaustedAccepted,
		Chosen:       -1,
		Reason:       "exhausted",
	}, log)

	want := Decision{StrategyUsed: "auto-type", Reason: "exhausted", RetryCount: 1, Score: 60, Attempt: 1}
	if diff := cmp.Diff(want, r.Decision); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
	if r.Duration != time.Second {
		t.Errorf("duration = %v", r.Duration)
	}
	if r.Succeeded() || r.Status() != "failed" {
		t.Errorf("unexpected status %s", r.Status())
	}
	if len(r.Events) != 1 || r.Events[0].Name != events.Start {
		t.Errorf("events not embedded: %v", r.Events)
	}
}

func TestAssembleCopiesState(t *testing.T) {
	attempts := []model.Attempt{evaluated(1, "auto-type", 100, true)}
	r := Assemble(State{Descriptor: testDescriptor(), Attempts: attempts, Outcome: model.OutcomeSuccess, Chosen: 0}, nil)

	attempts[0].Strategy = "mutated"
	if r.Attempts[0].Strategy != "auto-type" {
		t.Error("report shares the attempts slice with its caller")
	}
	if r.Events == nil || r.Attempts == nil {
		t.Error("empty collections must serialize as arrays")
	}
}

func TestAssembleFatal(t *testing.T) {
	cause := errors.New("chromium not found")
	r := Assemble(State{Descriptor: testDescriptor(), Outcome: model.OutcomeFatal, Chosen: -1, Err: cause}, nil)

	if !errors.Is(r.Err, cause) {
		t.Errorf("fatal cause must be surfaced unchanged, got %v", r.Err)
	}
	if r.Error != cause.Error() {
		t.Errorf("Error = %q", r.Error)
	}
	if r.Decision.StrategyUsed != "" || r.Evaluation != nil {
		t.Errorf("no attempt means no decision, got %+v", r.Decision)
	}
}

func TestReportJSON(t *testing.T) {
	out := model.BytesArtifact([]byte(`[{"a":1}]`), "json")
	r := Assemble(State{
		Descriptor: testDescriptor(), ConversionID: "c2",
		Attempts: []model.Attempt{evaluated(1, "auto-type", 100, true)},
		Outcome:  model.OutcomeSuccess, Chosen: 0, Output: &out,
	}, nil)

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["outcome"] != "success" || decoded["converterId"] != "csv-to-json" {
		t.Errorf("unexpected top-level fields: %v", decoded)
	}
	output := decoded["output"].(map[string]any)
	if output["size"].(float64) != 9 {
		t.Errorf("output size = %v", output["size"])
	}
}

func TestSummary(t *testing.T) {
	r := Assemble(State{
		Descriptor: testDescriptor(), ConversionID: "c3",
		Attempts: []model.Attempt{evaluated(1, "auto-type", 40, false)},
		Outcome:  model.OutcomeNoFixable, Chosen: -1,
		Diagnosis: &model.Diagnosis{
			RootCause: "source produces no extractable content",
			Severity:  model.DiagnosisHigh,
			Fixes:     []model.Fix{{ID: "verify-input", Description: "Verify input is a readable csv file", Confidence: 0.8}},
		},
	}, nil)

	s := r.Summary()
	for _, want := range []string{"CSV to JSON", "no-fixable", "auto-type", "Diagnosis [high]", "Verify input", "80%"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestIssueCodes(t *testing.T) {
	a1 := evaluated(1, "auto-type", 60, false)
	a1.Evaluation.Issues = []model.Issue{{Code: "A"}, {Code: "B"}}
	a2 := evaluated(2, "string-only", 60, false)
	a2.Evaluation.Issues = []model.Issue{{Code: "B"}, {Code: "C"}}
	r := &Report{Attempts: []model.Attempt{a1, a2}}

	if diff := cmp.Diff([]string{"A", "B", "C"}, r.IssueCodes()); diff != "" {
		t.Errorf("IssueCodes mismatch (-want +got):\n%s", diff)
	}
}

func TestTablePadsShortRows(t *testing.T) {
	out := Table([]string{"A", "B"}, [][]string{{"x"}}, nil)
	if !strings.Contains(out, "x") || !strings.Contains(out, "A") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if Table(nil, nil, nil) != "" {
		t.Error("no headers must render nothing")
	}
}
