package converters

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
)

const slideXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <p:cSld><p:spTree>%s</p:spTree></p:cSld>
</p:sld>`

// shape renders one text shape with a paragraph per line.
func shape(lines ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sp><p:txBody>`)
	for _, l := range lines {
		fmt.Fprintf(&b, `<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, l)
	}
	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

const picture = `<p:pic><p:blipFill><a:blip r:embed="rId2"/></p:blipFill></p:pic>`

// buildPPTX zips slides in the given entry order; keys are slide numbers.
func buildPPTX(t *testing.T, order []int, slides map[int]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte(`<Types/>`))
	for _, n := range order {
		w, err := zw.Create(fmt.Sprintf("ppt/slides/slide%d.xml", n))
		if err != nil {
			t.Fatal(err)
		}
		fmt.Fprintf(w, slideXML, slides[n])
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPPTXSectionedPasses(t *testing.T) {
	deck := buildPPTX(t, []int{1, 2}, map[int]string{
		1: shape("Welcome"),
		2: shape("Goodbye"),
	})
	rep, err := convert(t, PPTX(Kit{Engines: prober()}), nil, converter.Request{
		Input:   model.BytesArtifact(deck, "pptx"),
		Options: converter.NewOptions("md", nil),
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if rep.Outcome != model.OutcomeSuccess || rep.Decision.StrategyUsed != "sectioned" {
		t.Fatalf("outcome = %s, strategy = %s", rep.Outcome, rep.Decision.StrategyUsed)
	}
	want := "## Slide 1: Welcome\n\n---\n\n## Slide 2: Goodbye\n"
	if got := outputText(t, rep); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestExtractSlidesOrdersByNumber(t *testing.T) {
	deck := buildPPTX(t, []int{10, 2, 1}, map[int]string{
		1:  shape("One"),
		2:  shape("Two", "detail") + picture,
		10: shape("Ten"),
	})
	slides, err := ExtractSlides(deck)
	if err != nil {
		t.Fatalf("ExtractSlides: %v", err)
	}
	want := []Slide{
		{Number: 1, Lines: []string{"One"}},
		{Number: 2, Lines: []string{"Two", "detail"}, HasImages: true},
		{Number: 10, Lines: []string{"Ten"}},
	}
	if diff := cmp.Diff(want, slides); diff != "" {
		t.Errorf("slides (-want +got):\n%s", diff)
	}
}

func TestExtractSlidesErrors(t *testing.T) {
	if _, err := ExtractSlides([]byte("not a zip")); err == nil {
		t.Error("expected error for non-zip input")
	}
	empty := buildPPTX(t, nil, nil)
	if _, err := ExtractSlides(empty); err == nil || !strings.Contains(err.Error(), "no slides") {
		t.Errorf("expected no-slides error, got %v", err)
	}
}

func TestSectionedMarkdown(t *testing.T) {
	long := strings.Repeat("word ", 20)
	slides := []Slide{
		{Number: 1, Lines: []string{"A", "first point", "- already a bullet"}},
		{Number: 2, Lines: nil, HasImages: true},
		{Number: 3, Lines: []string{"C", strings.TrimSpace(long)}},
	}
	want := "## Slide 1: A\n\n- first point\n- already a bullet" +
		"\n\n---\n\n## Slide 2: Untitled\n\n_(slide contains images)_" +
		"\n\n---\n\n## Slide 3: C\n\n\n" + strings.TrimSpace(long) + "\n\n"
	if got := SectionedMarkdown(slides); got != want {
		t.Errorf("SectionedMarkdown =\n%q\nwant\n%q", got, want)
	}
}

func TestFlatMarkdown(t *testing.T) {
	got := FlatMarkdown([]Slide{{Lines: []string{"A", "b"}}, {Lines: []string{"C"}}})
	if want := "A\n\nb\n\nC\n"; got != want {
		t.Errorf("FlatMarkdown = %q, want %q", got, want)
	}
	if issues := markdownChecks("sectioned")(model.Artifact{}, model.BytesArtifact([]byte(got), "md"), "flat"); !hasCode(issues, CodeNoHeadings) {
		t.Errorf("flat output should lack headings: %+v", issues)
	}
}

func TestPPTXEnhanced(t *testing.T) {
	deck := buildPPTX(t, []int{1}, map[int]string{1: shape("Intro", "goals")})
	input := model.BytesArtifact(deck, "pptx")

	polished := "```markdown\n## Slide 1: Intro\n\nOur goals for the year.\n```"
	spec := PPTX(Kit{LLM: llm.NewFacade(&fakeAI{reply: polished}), Engines: prober()})
	res, err := execute(t, spec, input, "enhanced", converter.NewOptions("md", nil))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, _ := res.Output.Bytes()
	if want := "## Slide 1: Intro\n\nOur goals for the year."; string(got) != want {
		t.Errorf("enhanced = %q, want %q", got, want)
	}

	broken := PPTX(Kit{LLM: llm.NewFacade(&fakeAI{err: errors.New("rate limited")}), Engines: prober()})
	res, err = execute(t, broken, input, "enhanced", converter.NewOptions("md", nil))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, _ = res.Output.Bytes()
	if string(got) != "## Slide 1: Intro\n\n- goals\n" {
		t.Errorf("fallback output = %q", got)
	}
	if _, ok := res.Metadata["enhanceError"]; !ok {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestMarkdownChecks(t *testing.T) {
	check := markdownChecks("full")
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"clean", "# Title\n\nBody\n", nil},
		{"no headings", "just text\n", []string{CodeNoHeadings}},
		{"raw html", "# T\n\n<div>left</div>\n", []string{CodeRawHTML}},
		{"blank", "  \n\n", []string{"OUTPUT_EMPTY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, i := range check(model.Artifact{}, model.BytesArtifact([]byte(tt.text), "md"), "") {
				got = append(got, i.Code)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("codes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"```md\n# A\n```":   "# A",
		"```\nplain\n```\n": "plain",
		"  no fence  ":      "no fence",
	}
	for in, want := range tests {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
