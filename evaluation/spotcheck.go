package evaluation

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
)

// sampleLimit caps how much of an output is shown to the judge.
const sampleLimit = 4000

// ExcerptFunc renders the part of an (input, output) pair the judge should see.
type ExcerptFunc func(input, output model.Artifact) string

// TextExcerpt shows the leading text of the output.
func TextExcerpt(_, output model.Artifact) string {
	data := output.Head(sampleLimit)
	for len(data) > 0 && !utf8.Valid(data) {
		data = data[:len(data)-1]
	}
	return string(data)
}

// LLMSpotCheck builds a spot-check that asks the model to grade an output
// against rubric and reply with {"score": 0-100}. A reply without a numeric
// score is rejected.
func LLMSpotCheck(ai *llm.Facade, rubric string, excerpt ExcerptFunc) converter.SpotCheckFunc {
	if excerpt == nil {
		excerpt = TextExcerpt
	}
	return func(ctx context.Context, input, output model.Artifact) (int, error) {
		if !ai.Available() {
			return 0, llm.ErrUnavailable
		}
		prompt := fmt.Sprintf(`Grade this conversion output from 0 to 100.

Rubric: %s

Output (%s, %d bytes, excerpt):
%s

Reply as {"score": <integer 0-100>, "reason": "<one sentence>"}.`,
			rubric, output.Format, output.Size(), excerpt(input, output))

		var reply struct {
			Score  *float64 `json:"score"`
			Reason string   `json:"reason"`
		}
		if err := ai.JSON(ctx, prompt, llm.JSONOptions{
			Profile:     "judge",
			Feature:     "spot-check",
			Temperature: llm.Float32(0),
			MaxTokens:   200,
		}, &reply); err != nil {
			return 0, err
		}
		if reply.Score == nil {
			return 0, errors.New("spot-check reply has no score")
		}
		return clamp(int(*reply.Score)), nil
	}
}
