package converters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

// CodeTableMalformed flags pipe rows without a header separator.
const CodeTableMalformed = "TABLE_MALFORMED"

// Token budget for extracted text handed to the model.
const (
	defaultTextTokens = 12000
	tokenizerModel    = "gpt-4o"
)

var pdfPrompts = map[string]string{
	"structured": "Convert the extracted PDF text into clean Markdown. Recover the document's heading hierarchy " +
		"with #, ## and ###, keep paragraphs and lists, and drop page headers, footers and page numbers.",
	"layout-aware": "Convert the extracted PDF text into Markdown, preserving layout. Columns of aligned values " +
		"are tables: render them as Markdown tables with a header separator row. Keep headings as #-prefixed lines.",
	"concise": "Summarize the extracted PDF text as concise Markdown notes: a # title, ## sections, and short bullet points. " +
		"Keep figures, names and numbers exact.",
}

var (
	pipeRow      = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
	separatorRow = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
)

// PDFMarkdown extracts text with pdftotext and asks the model to structure it.
func PDFMarkdown(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	checks := markdownChecks("structured")
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "pdf-to-md",
			Name:        "PDF to Markdown",
			Description: "Extracts PDF text and structures it as Markdown with an LLM",
			Category:    "PDF document",
			From:        []string{"pdf"},
			To:          []string{"md"},
			Strategies: []model.Strategy{
				{ID: "structured", Description: "Recover the heading hierarchy", When: "reports, papers and manuals",
					Engine: "pdftotext+ai", Mode: model.ModeGenerative, Speed: model.SpeedMedium, Quality: model.QualityHigh},
				{ID: "layout-aware", Description: "Keep columns and tables", When: "the document is table or form heavy",
					Engine: "pdftotext+ai", Mode: model.ModeGenerative, Speed: model.SpeedSlow, Quality: model.QualityHigh},
				{ID: "concise", Description: "Condensed notes", When: "a summary is enough or the document is long",
					Engine: "pdftotext+ai", Mode: model.ModeGenerative, Speed: model.SpeedFast, Quality: model.QualityMedium},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return convertPDF(ctx, kit, ws, input, strategy, opts)
		},
		Checks: func(input, output model.Artifact, strategy string) []model.Issue {
			issues := checks(input, output, strategy)
			if strategy != "layout-aware" || output.Size() == 0 {
				return issues
			}
			data, err := output.Bytes()
			if err != nil {
				return issues
			}
			if pipeRow.Match(data) && !separatorRow.Match(data) {
				issues = append(issues, evaluation.Warning(CodeTableMalformed, "table rows without a header separator", true))
			}
			return issues
		},
		SpotCheck: evaluation.LLMSpotCheck(kit.LLM,
			"Markdown is well structured, faithful to a PDF document and free of extraction noise.", nil),
	}
}

func convertPDF(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	prompt, ok := pdfPrompts[strategy]
	if !ok {
		return model.ExecuteResult{}, converter.InvalidInput("unknown pdf strategy %q", strategy)
	}
	text, err := extractPDFText(ctx, kit, ws, input, strategy == "layout-aware", opts.Int("maxPages", 0))
	if err != nil {
		return model.ExecuteResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, errors.New("pdf has no extractable text"))
	}

	budget := opts.Int("maxTokens", defaultTextTokens)
	truncated := llm.TruncateTokens(text, tokenizerModel, budget)

	reply, err := kit.LLM.Chat(ctx, llm.ChatRequest{
		System:      prompt + " Reply with Markdown only.",
		Messages:    []llm.ChatMessage{llm.UserMessage(truncated)},
		MaxTokens:   4096,
		Temperature: llm.Float32(0.2),
		Feature:     "enhance",
	})
	if err != nil {
		return model.ExecuteResult{}, aiError("pdf-to-md", err)
	}
	md := stripFences(reply)
	if md == "" {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, errors.New("model returned no markdown"))
	}
	metadata := map[string]any{
		"engine":    deps.EnginePDFToText,
		"llm":       kit.LLM.Name(),
		"textChars": len(text),
		"truncated": len(truncated) < len(text),
	}
	if len(truncated) < len(text) {
		metadata["textTokens"] = llm.CountTokens(truncated, tokenizerModel)
	}
	return model.ExecuteResult{Output: model.BytesArtifact([]byte(md+"\n"), opts.Target), Metadata: metadata}, nil
}

// extractPDFText runs pdftotext and returns its stdout.
func extractPDFText(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, layout bool, maxPages int) (string, error) {
	in, err := ws.Materialize(input, "input.pdf")
	if err != nil {
		return "", err
	}
	args := []string{"-enc", "UTF-8"}
	if layout {
		args = append(args, "-layout")
	}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, in, "-")
	res, err := kit.run(ctx, deps.EnginePDFToText, args, subprocess.Options{})
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return string(res.Stdout), nil
}
