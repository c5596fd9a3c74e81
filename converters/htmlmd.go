package converters

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/textenc"
	"github.com/richinex/transmute/model"
)

// chrome is page furniture dropped by the readable strategy.
const chrome = "nav, aside, footer, header, form, [role=navigation], [role=banner], [role=contentinfo]"

// HTMLMarkdown converts HTML documents to Markdown.
func HTMLMarkdown(kit Kit) converter.Spec {
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "html-to-md",
			Name:        "HTML to Markdown",
			Description: "Converts HTML pages to Markdown",
			Category:    "HTML document",
			From:        []string{"html"},
			To:          []string{"md"},
			Strategies: []model.Strategy{
				{ID: "readable", Description: "Main article content only", When: "a page with navigation and sidebars",
					Engine: "goquery", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
				{ID: "full", Description: "The whole body", When: "a document without page chrome, or readable lost content",
					Engine: "goquery", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityMedium},
			},
		}),
		Execute: func(_ context.Context, _ *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return convertHTML(input, strategy, opts)
		},
		Checks: markdownChecks("full"),
	}
}

func convertHTML(input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	data, err := input.Bytes()
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("read html: %v", err)
	}
	text, encoding, err := textenc.ToUTF8(data, "text/html")
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("decode html: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(text))
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, fmt.Errorf("parse html: %w", err))
	}
	doc.Find("script, style, noscript, template, svg").Remove()

	var root *goquery.Selection
	switch strategy {
	case "readable":
		root = mainContent(doc)
		root.Find(chrome).Remove()
	case "full":
		root = doc.Find("body")
	default:
		return model.ExecuteResult{}, converter.InvalidInput("unknown html strategy %q", strategy)
	}

	md := RenderMarkdown(root)
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" && !headingLine.MatchString(md) {
		md = "# " + title + "\n\n" + md
	}
	return model.ExecuteResult{
		Output:   model.BytesArtifact([]byte(md), opts.Target),
		Metadata: map[string]any{"title": title, "encoding": encoding},
	}, nil
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"article", "main", "[role=main]", "#content", ".content"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Find("body")
}

// RenderMarkdown renders the block content of sel.
func RenderMarkdown(sel *goquery.Selection) string {
	var blocks []string
	sel.Each(func(_ int, s *goquery.Selection) {
		renderBlocks(s, &blocks)
	})
	return strings.Join(blocks, "\n\n") + "\n"
}

func renderBlocks(sel *goquery.Selection, blocks *[]string) {
	var loose strings.Builder
	flush := func() {
		if t := collapse(loose.String()); t != "" {
			*blocks = append(*blocks, t)
		}
		loose.Reset()
	}

	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.Type == html.TextNode {
			loose.WriteString(node.Data)
			return
		}
		if node.Type != html.ElementNode {
			return
		}
		name := goquery.NodeName(s)
		switch name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			flush()
			if t := inline(s); t != "" {
				*blocks = append(*blocks, strings.Repeat("#", int(name[1]-'0'))+" "+t)
			}
		case "p":
			flush()
			if t := inline(s); t != "" {
				*blocks = append(*blocks, t)
			}
		case "ul", "ol":
			flush()
			if l := renderList(s, name == "ol"); l != "" {
				*blocks = append(*blocks, l)
			}
		case "pre":
			flush()
			*blocks = append(*blocks, "```\n"+strings.TrimRight(s.Text(), "\n")+"\n```")
		case "blockquote":
			flush()
			var inner []string
			renderBlocks(s, &inner)
			quoted := strings.ReplaceAll(strings.Join(inner, "\n\n"), "\n", "\n> ")
			if quoted != "" {
				*blocks = append(*blocks, "> "+quoted)
			}
		case "table":
			flush()
			if t := renderTable(s); t != "" {
				*blocks = append(*blocks, t)
			}
		case "hr":
			flush()
			*blocks = append(*blocks, "---")
		case "div", "section", "article", "main", "body", "header", "footer", "nav", "aside", "figure", "form":
			flush()
			renderBlocks(s, blocks)
		default:
			writeInline(&loose, s)
		}
	})
	flush()
}

// inline renders phrasing content on one line.
func inline(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		writeInline(&b, s)
	})
	return collapse(b.String())
}

// writeInline renders one phrasing node, including its own markup.
func writeInline(b *strings.Builder, s *goquery.Selection) {
	node := s.Get(0)
	switch node.Type {
	case html.TextNode:
		b.WriteString(node.Data)
		return
	case html.ElementNode:
	default:
		return
	}
	switch goquery.NodeName(s) {
	case "a":
		text := inline(s)
		if href, ok := s.Attr("href"); ok && href != "" && !strings.HasPrefix(href, "javascript:") {
			fmt.Fprintf(b, "[%s](%s)", text, href)
		} else {
			b.WriteString(text)
		}
	case "strong", "b":
		if t := inline(s); t != "" {
			b.WriteString("**" + t + "**")
		}
	case "em", "i":
		if t := inline(s); t != "" {
			b.WriteString("*" + t + "*")
		}
	case "code":
		b.WriteString("`" + s.Text() + "`")
	case "img":
		alt, _ := s.Attr("alt")
		if src, ok := s.Attr("src"); ok {
			fmt.Fprintf(b, "![%s](%s)", alt, src)
		}
	case "br":
		b.WriteString("  \n")
	default:
		b.WriteString(inline(s))
	}
}

func renderList(sel *goquery.Selection, ordered bool) string {
	var lines []string
	n := 0
	sel.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		n++
		marker := "-"
		if ordered {
			marker = fmt.Sprintf("%d.", n)
		}
		nested := li.ChildrenFiltered("ul, ol")
		nested.Remove()
		lines = append(lines, marker+" "+inline(li))
		nested.Each(func(_ int, sub *goquery.Selection) {
			for _, l := range strings.Split(renderList(sub, goquery.NodeName(sub) == "ol"), "\n") {
				lines = append(lines, "  "+l)
			}
		})
	})
	return strings.Join(lines, "\n")
}

func renderTable(sel *goquery.Selection) string {
	var rows [][]string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.ReplaceAll(inline(cell), "|", `\|`))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return ""
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	var b strings.Builder
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		b.WriteString("| " + strings.Join(r, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// collapse folds runs of whitespace, keeping explicit Markdown line breaks.
func collapse(s string) string {
	parts := strings.Split(s, "  \n")
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(p), " ")
	}
	return strings.TrimSpace(strings.Join(parts, "  \n"))
}
