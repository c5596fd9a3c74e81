// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Mode tells whether a strategy is a pure transform or may call an LLM.
type Mode string

const (
	ModeSymbolic   Mode = "symbolic"
	ModeGenerative Mode = "generative"
)

// Speed is a qualitative speed rating for a strategy.
type Speed string

const (
	SpeedFast   Speed = "fast"
	SpeedMedium Speed = "medium"
	SpeedSlow   Speed = "slow"
)

// Quality is a qualitative output quality rating for a strategy.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Strategy is a named variant implementation within a converter.
type Strategy struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	When        string  `json:"when"`
	Engine      string  `json:"engine"`
	Mode        Mode    `json:"mode"`
	Speed       Speed   `json:"speed"`
	Quality     Quality `json:"quality"`
	// Stub marks a declared strategy with no implementation. Planning skips
	// it; running it anyway fails with NotImplemented.
	Stub bool `json:"stub,omitempty"`
}

// Artifact is an opaque input or output: either an in-memory buffer or a file path.
// Format is a lowercase format hint such as "png" or "csv".
type Artifact struct {
	Data   []byte
	Path   string
	Format string
}

// BytesArtifact wraps a buffer.
func BytesArtifact(data []byte, format string) Artifact {
	return Artifact{Data: data, Format: NormalizeFormat(format)}
}

// FileArtifact wraps a file path.
func FileArtifact(path, format string) Artifact {
	return Artifact{Path: path, Format: NormalizeFormat(format)}
}

// IsZero reports whether the artifact carries neither bytes nor a path.
func (a Artifact) IsZero() bool {
	return len(a.Data) == 0 && a.Path == ""
}

// Size returns the byte size of the artifact. File-backed artifacts are stat'ed;
// a missing file has size 0.
func (a Artifact) Size() int64 {
	if len(a.Data) > 0 || a.Path == "" {
		return int64(len(a.Data))
	}
	info, err := os.Stat(a.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Bytes returns the artifact content, reading the file when needed.
func (a Artifact) Bytes() ([]byte, error) {
	if len(a.Data) > 0 || a.Path == "" {
		return a.Data, nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// Head returns up to n leading bytes of the artifact.
func (a Artifact) Head(n int) []byte {
	if len(a.Data) > 0 || a.Path == "" {
		if len(a.Data) < n {
			return a.Data
		}
		return a.Data[:n]
	}
	f, err := os.Open(a.Path)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, n)
	read, _ := f.Read(buf)
	return buf[:read]
}

// MarshalJSON omits the payload; reports carry size and location only.
func (a Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path   string `json:"path,omitempty"`
		Format string `json:"format,omitempty"`
		Size   int64  `json:"size"`
	}{a.Path, a.Format, a.Size()})
}

// NormalizeFormat lowercases a format hint and strips a leading dot.
// "jpg" is folded into "jpeg" and "markdown" into "md".
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch f {
	case "jpg":
		return "jpeg"
	case "markdown":
		return "md"
	case "yml":
		return "yaml"
	case "htm":
		return "html"
	case "tif":
		return "tiff"
	}
	return f
}

// Severity grades an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a single observation about output quality.
type Issue struct {
	Code              string   `json:"code"`
	Severity          Severity `json:"severity"`
	Message           string   `json:"message"`
	Fixable           bool     `json:"fixable"`
	SuggestedStrategy string   `json:"suggestedStrategy,omitempty"`
}

// Evaluation is the verdict on one attempt's output.
type Evaluation struct {
	Issues   []Issue `json:"issues"`
	Score    int     `json:"score"`
	Pass     bool    `json:"pass"`
	LLMScore *int    `json:"llmScore,omitempty"`
}

// Count returns the number of issues with the given severity.
func (e Evaluation) Count(sev Severity) int {
	n := 0
	for _, issue := range e.Issues {
		if issue.Severity == sev {
			n++
		}
	}
	return n
}

// HasCode reports whether any issue carries the given code.
func (e Evaluation) HasCode(code string) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// ExecuteResult is what a converter body returns for one strategy run.
type ExecuteResult struct {
	Output     Artifact       `json:"output"`
	Metadata   map[string]any `json:"metadata"`
	Duration   time.Duration  `json:"durationNs"`
	StrategyID string         `json:"strategy"`
}

// Attempt is one iteration of plan, execute and evaluate.
type Attempt struct {
	Number     int            `json:"attempt"`
	Strategy   string         `json:"strategy"`
	Method     string         `json:"method"`
	Result     *ExecuteResult `json:"result,omitempty"`
	Evaluation *Evaluation    `json:"evaluation,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"durationNs"`
}

// Score returns the attempt's evaluation score, or -1 when it was never evaluated.
func (a Attempt) Score() int {
	if a.Evaluation == nil {
		return -1
	}
	return a.Evaluation.Score
}

// StructurallyValid reports whether the attempt produced an artifact with no error issues.
func (a Attempt) StructurallyValid() bool {
	if a.Result == nil || a.Evaluation == nil {
		return false
	}
	return a.Evaluation.Count(SeverityError) == 0
}

// BestAttempt ranks attempts by score descending, then attempt number ascending.
// Returns -1 when no attempt was evaluated.
func BestAttempt(attempts []Attempt) int {
	best := -1
	for i, a := range attempts {
		if a.Evaluation == nil {
			continue
		}
		if best == -1 || a.Score() > attempts[best].Score() {
			best = i
		}
	}
	return best
}

// Outcome is the terminal state of a conversion.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeExhaustedAccepted Outcome = "exhausted-accepted"
	OutcomeFatal             Outcome = "fatal"
	OutcomeNoFixable         Outcome = "no-fixable"
	OutcomeCancelled         Outcome = "cancelled"
)

// DiagnosisSeverity grades a post-mortem.
type DiagnosisSeverity string

const (
	DiagnosisCritical DiagnosisSeverity = "critical"
	DiagnosisHigh     DiagnosisSeverity = "high"
	DiagnosisMedium   DiagnosisSeverity = "medium"
	DiagnosisLow      DiagnosisSeverity = "low"
)

// Fix is a proposed remedy.
type Fix struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Strategy    string  `json:"strategy,omitempty"`
}

// Diagnosis is the post-mortem on a failed or low-quality run.
type Diagnosis struct {
	RootCause        string            `json:"rootCause"`
	Severity         DiagnosisSeverity `json:"severity"`
	AffectedAxes     []string          `json:"affectedAxes"`
	Fixes            []Fix             `json:"fixes"`
	AlternativeRoute string            `json:"alternativeRoute,omitempty"`
	Source           string            `json:"source"`
}
