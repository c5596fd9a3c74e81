package diagnosis

import (
	"fmt"
	"strings"

	"github.com/richinex/transmute/model"
)

// pattern maps issue codes seen across attempts to a canned explanation.
type pattern struct {
	codes       []string
	cause       string
	axes        []string
	fixes       func(desc model.Descriptor) []model.Fix
	alternative func(desc model.Descriptor) string
}

func (p pattern) hits(counts map[string]int) int {
	n := 0
	for _, code := range p.codes {
		n += counts[code]
	}
	return n
}

func fixes(list ...model.Fix) func(model.Descriptor) []model.Fix {
	return func(model.Descriptor) []model.Fix { return list }
}

func none(model.Descriptor) string { return "" }

func category(desc model.Descriptor) string {
	if c := desc.Category(); c != "" {
		return c
	}
	if from := desc.From(); len(from) > 0 {
		return strings.Join(from, "/") + " file"
	}
	return "file"
}

var patterns = []pattern{
	{
		codes: []string{"AI_UNAVAILABLE"},
		cause: "AI service required but unavailable",
		axes:  []string{"llm"},
		fixes: fixes(model.Fix{
			ID:          "configure-llm",
			Description: "Configure an LLM provider (OPENAI_API_KEY, ANTHROPIC_API_KEY, DEEPSEEK_API_KEY or GEMINI_API_KEY)",
			Confidence:  0.9,
		}),
		alternative: func(model.Descriptor) string {
			return "use a symbolic converter for this input, or extract text without LLM formatting"
		},
	},
	{
		codes: []string{"MISSING_ENGINE"},
		cause: "required external engine is not installed",
		axes:  []string{"environment"},
		fixes: fixes(model.Fix{
			ID:          "install-engine",
			Description: "Install the missing engine and make sure it is on PATH",
			Confidence:  0.95,
		}),
		alternative: none,
	},
	{
		codes: []string{"OUTPUT_EMPTY", "EXECUTE_THREW"},
		cause: "source produces no extractable content",
		axes:  []string{"input", "content"},
		fixes: func(desc model.Descriptor) []model.Fix {
			return []model.Fix{{
				ID:          "verify-input",
				Description: fmt.Sprintf("Verify input is a readable %s", category(desc)),
				Confidence:  0.8,
			}}
		},
		alternative: none,
	},
	{
		codes: []string{"MAGIC_BYTES_MISMATCH"},
		cause: "encoder/container mismatch",
		axes:  []string{"format"},
		fixes: fixes(model.Fix{
			ID:          "check-encoder",
			Description: "Check that the encoder supports the requested target container",
			Confidence:  0.7,
		}),
		alternative: none,
	},
	{
		codes: []string{"INVALID_PDF_HEADER"},
		cause: "engine did not produce a PDF document",
		axes:  []string{"format"},
		fixes: fixes(model.Fix{
			ID:          "check-engine-output",
			Description: "Run the rendering engine by hand and confirm it writes a PDF",
			Confidence:  0.6,
		}),
		alternative: none,
	},
	{
		codes: []string{"EXECUTE_TIMEOUT"},
		cause: "conversion exceeds the execute time bound",
		axes:  []string{"performance"},
		fixes: fixes(model.Fix{
			ID:          "raise-timeout",
			Description: "Raise the execute timeout or choose a faster strategy",
			Confidence:  0.6,
		}),
		alternative: none,
	},
	{
		codes: []string{"ENGINE_FAILED"},
		cause: "external engine rejected the input",
		axes:  []string{"engine", "input"},
		fixes: fixes(model.Fix{
			ID:          "inspect-stderr",
			Description: "Inspect the engine stderr recorded on converter:execute:error events",
			Confidence:  0.5,
		}),
		alternative: none,
	},
	{
		codes: []string{"NO_HEADINGS"},
		cause: "output lacks document structure",
		axes:  []string{"structure"},
		fixes: func(desc model.Descriptor) []model.Fix {
			fix := model.Fix{
				ID:          "use-structured-strategy",
				Description: "Retry with a strategy that emits headings",
				Confidence:  0.5,
			}
			for _, id := range []string{"structured", "sectioned", "layout-aware"} {
				if desc.HasStrategy(id) {
					fix.Strategy = id
					break
				}
			}
			return []model.Fix{fix}
		},
		alternative: none,
	},
	{
		codes: []string{"UNSUPPORTED_TARGET"},
		cause: "requested format pair is not supported by this converter",
		axes:  []string{"format"},
		fixes: fixes(model.Fix{
			ID:          "choose-supported-target",
			Description: "Request one of the converter's declared output formats",
			Confidence:  0.9,
		}),
		alternative: func(desc model.Descriptor) string {
			return "convert to one of: " + strings.Join(desc.To(), ", ")
		},
	},
	{
		codes: []string{"NOT_IMPLEMENTED"},
		cause: "selected strategy is declared but not implemented",
		axes:  []string{"strategy"},
		fixes: fixes(model.Fix{
			ID:          "use-implemented-strategy",
			Description: "Pin an implemented strategy instead",
			Confidence:  0.85,
		}),
		alternative: none,
	},
	{
		codes: []string{"INVALID_INPUT"},
		cause: "input violates the converter contract",
		axes:  []string{"input"},
		fixes: fixes(model.Fix{
			ID:          "fix-request",
			Description: "Supply a non-empty input and a target format",
			Confidence:  0.8,
		}),
		alternative: none,
	},
	{
		codes: []string{"EVALUATION_FAILED"},
		cause: "structural checks crashed on the produced output",
		axes:  []string{"evaluation"},
		fixes: fixes(model.Fix{
			ID:          "inspect-output",
			Description: "Inspect the produced output; it may be truncated or malformed",
			Confidence:  0.4,
		}),
		alternative: none,
	},
}
