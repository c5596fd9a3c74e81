// Package evaluation turns structural issues and an optional LLM opinion into
// a scored, gated Evaluation.
package evaluation

import "github.com/richinex/transmute/model"

const (
	// DefaultMinPassScore is the pass threshold used when a request sets none.
	DefaultMinPassScore = 70

	errorPenalty   = 20
	warningPenalty = 5
)

// Score applies the universal rule:
//
//	100 - 20*errors - 5*warnings - (100 - llmScore)
//
// The LLM term is dropped when llmScore is nil. The result is clamped to [0,100].
func Score(issues []model.Issue, llmScore *int) int {
	score := 100
	for _, issue := range issues {
		switch issue.Severity {
		case model.SeverityError:
			score -= errorPenalty
		case model.SeverityWarning:
			score -= warningPenalty
		}
	}
	if llmScore != nil {
		score -= 100 - clamp(*llmScore)
	}
	return clamp(score)
}

// Pass reports whether an evaluation clears the gate: no error issue and a
// score at or above minPassScore.
func Pass(issues []model.Issue, score, minPassScore int) bool {
	for _, issue := range issues {
		if issue.Severity == model.SeverityError {
			return false
		}
	}
	return score >= minPassScore
}

// ShouldRetry reports whether a different strategy might help: some error
// issue is fixable, or the score missed the threshold and some issue is fixable.
func ShouldRetry(ev model.Evaluation, minPassScore int) bool {
	anyFixable := false
	for _, issue := range ev.Issues {
		if !issue.Fixable {
			continue
		}
		if issue.Severity == model.SeverityError {
			return true
		}
		anyFixable = true
	}
	return anyFixable && ev.Score < minPassScore
}

// Build assembles an Evaluation from issues and an optional LLM score.
func Build(issues []model.Issue, llmScore *int, minPassScore int) model.Evaluation {
	if issues == nil {
		issues = []model.Issue{}
	}
	score := Score(issues, llmScore)
	return model.Evaluation{
		Issues:   issues,
		Score:    score,
		Pass:     Pass(issues, score, minPassScore),
		LLMScore: llmScore,
	}
}

func clamp(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
