package converters

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
)

// slideEntry matches slide parts inside the package, e.g. ppt/slides/slide12.xml.
var slideEntry = regexp.MustCompile(`(?:^|/)slides/slide(\d+)\.xml$`)

// bulletLimit is the longest line rendered as a bullet in sectioned output.
const bulletLimit = 80

// Slide is the text extracted from one slide.
type Slide struct {
	Number    int
	Lines     []string
	HasImages bool
}

// Title returns the first line of the slide, or "Untitled".
func (s Slide) Title() string {
	if len(s.Lines) == 0 {
		return "Untitled"
	}
	return s.Lines[0]
}

// PPTX renders presentation text as Markdown.
func PPTX(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "pptx-to-md",
			Name:        "PowerPoint to Markdown",
			Description: "Extracts slide text from a pptx package into Markdown",
			Category:    "presentation",
			From:        []string{"pptx"},
			To:          []string{"md"},
			Strategies: []model.Strategy{
				{ID: "sectioned", Description: "One level-2 heading per slide with bullets, separated by rules", When: "slide structure should be preserved",
					Engine: "zip+xml", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
				{ID: "flat", Description: "All slide text as plain paragraphs", When: "only the text matters",
					Engine: "zip+xml", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityMedium},
				{ID: "enhanced", Description: "Sectioned output polished by an LLM", When: "slides are terse and need readable prose",
					Engine: "zip+xml+ai", Mode: model.ModeGenerative, Speed: model.SpeedSlow, Quality: model.QualityHigh},
			},
		}),
		Execute: func(ctx context.Context, _ *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return convertPPTX(ctx, kit, input, strategy, opts)
		},
		Checks: markdownChecks("sectioned"),
		SpotCheck: evaluation.LLMSpotCheck(kit.LLM,
			"Markdown faithfully reflects the slide deck: one section per slide, no invented content.", nil),
	}
}

func convertPPTX(ctx context.Context, kit Kit, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	data, err := input.Bytes()
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("read pptx: %v", err)
	}
	slides, err := ExtractSlides(data)
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
	}

	metadata := map[string]any{"slides": len(slides), "images": countImages(slides)}
	var md string
	switch strategy {
	case "sectioned":
		md = SectionedMarkdown(slides)
	case "flat":
		md = FlatMarkdown(slides)
	case "enhanced":
		md = SectionedMarkdown(slides)
		polished, err := polishMarkdown(ctx, kit.LLM, md)
		if err != nil {
			metadata["enhanceError"] = err.Error()
		} else {
			md = polished
			metadata["enhanced"] = true
		}
	default:
		return model.ExecuteResult{}, converter.InvalidInput("unknown pptx strategy %q", strategy)
	}
	return model.ExecuteResult{Output: model.BytesArtifact([]byte(md), opts.Target), Metadata: metadata}, nil
}

// ExtractSlides reads slide text from a pptx package in slide-number order.
func ExtractSlides(data []byte) ([]Slide, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pptx package: %w", err)
	}

	var slides []Slide
	for _, f := range zr.File {
		m := slideEntry.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slide, err := readSlide(f)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", n, err)
		}
		slide.Number = n
		slides = append(slides, slide)
	}
	if len(slides) == 0 {
		return nil, errors.New("package contains no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].Number < slides[j].Number })
	return slides, nil
}

// readSlide groups a:t runs under their a:p paragraph.
func readSlide(f *zip.File) (Slide, error) {
	rc, err := f.Open()
	if err != nil {
		return Slide{}, err
	}
	defer rc.Close()

	var (
		slide  Slide
		para   strings.Builder
		inPara bool
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Slide{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "p" && isDrawingML(t.Name.Space):
				inPara = true
				para.Reset()
			case t.Name.Local == "t" && isDrawingML(t.Name.Space):
				inText = true
			case t.Name.Local == "blip" || (t.Name.Local == "pic" && !isDrawingML(t.Name.Space)):
				slide.HasImages = true
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "t" && isDrawingML(t.Name.Space):
				inText = false
			case t.Name.Local == "p" && isDrawingML(t.Name.Space):
				inPara = false
				if line := strings.TrimSpace(para.String()); line != "" {
					slide.Lines = append(slide.Lines, line)
				}
			}
		case xml.CharData:
			if inText && inPara {
				para.Write(t)
			}
		}
	}
	return slide, nil
}

// isDrawingML reports whether space is the DrawingML main namespace. The
// decoder resolves prefixes, so the a: prefix itself is not visible here.
func isDrawingML(space string) bool {
	return space == "a" || strings.HasSuffix(space, "/drawingml/2006/main")
}

// SectionedMarkdown renders one "## Slide i: title" section per slide.
func SectionedMarkdown(slides []Slide) string {
	sections := make([]string, 0, len(slides))
	for i, s := range slides {
		var b strings.Builder
		fmt.Fprintf(&b, "## Slide %d: %s", i+1, s.Title())
		if len(s.Lines) > 1 {
			b.WriteString("\n\n")
			for j, line := range s.Lines[1:] {
				if j > 0 {
					b.WriteString("\n")
				}
				b.WriteString(bulletLine(line))
			}
		}
		if s.HasImages {
			b.WriteString("\n\n_(slide contains images)_")
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

func bulletLine(line string) string {
	switch {
	case strings.HasPrefix(line, "-"):
		return "- " + strings.TrimSpace(strings.TrimLeft(line, "-"))
	case len([]rune(line)) <= bulletLimit:
		return "- " + line
	default:
		return "\n" + line + "\n"
	}
}

// FlatMarkdown joins all slide text as paragraphs.
func FlatMarkdown(slides []Slide) string {
	var paras []string
	for _, s := range slides {
		paras = append(paras, s.Lines...)
	}
	return strings.Join(paras, "\n\n") + "\n"
}

func countImages(slides []Slide) int {
	n := 0
	for _, s := range slides {
		if s.HasImages {
			n++
		}
	}
	return n
}

func polishMarkdown(ctx context.Context, ai *llm.Facade, md string) (string, error) {
	out, err := ai.Chat(ctx, llm.ChatRequest{
		System: "You rewrite slide-deck Markdown into readable notes. Keep every '## Slide N:' heading " +
			"and the '---' separators. Do not invent facts. Reply with Markdown only.",
		Messages:    []llm.ChatMessage{llm.UserMessage(md)},
		MaxTokens:   4096,
		Temperature: llm.Float32(0.3),
		Feature:     "enhance",
	})
	if err != nil {
		return "", err
	}
	out = stripFences(out)
	if strings.TrimSpace(out) == "" {
		return "", errors.New("empty enhancement")
	}
	return out, nil
}

// markdownChecks builds the shared Markdown structural checks; a missing
// heading suggests the given strategy.
func markdownChecks(headingStrategy string) converter.ChecksFunc {
	return func(_, output model.Artifact, _ string) []model.Issue {
		issues, ok := evaluation.CheckNonEmpty(output, 0)
		if !ok {
			return issues
		}
		data, err := output.Bytes()
		if err != nil {
			return append(issues, evaluation.Error(evaluation.CodeEvaluationFailed, err.Error(), true))
		}
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return append(issues, evaluation.Error(evaluation.CodeOutputEmpty, "output is blank", true))
		}
		if !headingLine.MatchString(text) {
			issues = append(issues, evaluation.Suggest(
				evaluation.Warning(CodeNoHeadings, "markdown has no headings", true), headingStrategy))
		}
		if rawHTML.MatchString(text) {
			issues = append(issues, evaluation.Warning(CodeRawHTML, "raw HTML tags remain in markdown", true))
		}
		return issues
	}
}

var (
	headingLine = regexp.MustCompile(`(?m)^#{1,6} \S`)
	rawHTML     = regexp.MustCompile(`(?i)</?(div|span|p|table|tr|td|br|font|script|style)\b[^>]*>`)
	fence       = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\n(.*?)\\n?```\\s*$")
)

// stripFences removes a single wrapping code fence from an LLM reply.
func stripFences(s string) string {
	if m := fence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}
