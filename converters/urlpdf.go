package converters

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"strings"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/subprocess"
)

// minPDFSize is the size below which a rendered page is suspicious.
const minPDFSize = 500

// URLPDF renders a web page to PDF with a headless Chromium.
func URLPDF(kit Kit) converter.Spec {
	kit = kit.withDefaults()
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "url-to-pdf",
			Name:        "URL to PDF",
			Description: "Renders a web page to PDF with a headless browser",
			Category:    "web page",
			From:        []string{"url"},
			To:          []string{"pdf"},
			Strategies: []model.Strategy{
				{ID: "print", Description: "Browser print-to-pdf with selectable text", When: "the page prints cleanly",
					Engine: deps.EngineChrome, Mode: model.ModeSymbolic, Speed: model.SpeedMedium, Quality: model.QualityHigh},
				{ID: "screenshot", Description: "Full-page screenshot embedded in a PDF", When: "print layout is broken or the page is script heavy",
					Engine: deps.EngineChrome, Mode: model.ModeSymbolic, Speed: model.SpeedMedium, Quality: model.QualityMedium},
			},
		}),
		Execute: func(ctx context.Context, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return renderURL(ctx, kit, ws, input, strategy, opts)
		},
		Checks: func(_, output model.Artifact, _ string) []model.Issue {
			issues, ok := evaluation.CheckNonEmpty(output, minPDFSize)
			if !ok {
				return issues
			}
			return append(issues, evaluation.CheckPDF(output)...)
		},
		Describe: func(input model.Artifact, _ map[string]any) string {
			return "web page " + strings.TrimSpace(string(input.Head(512)))
		},
	}
}

// PageURL validates an input artifact holding a single http(s) URL.
func PageURL(input model.Artifact) (string, error) {
	data, err := input.Bytes()
	if err != nil {
		return "", converter.InvalidInput("read url: %v", err)
	}
	raw := strings.TrimSpace(string(data))
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", converter.InvalidInput("not an http(s) url: %q", raw)
	}
	return u.String(), nil
}

func renderURL(ctx context.Context, kit Kit, ws *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	page, err := PageURL(input)
	if err != nil {
		return model.ExecuteResult{}, err
	}
	base := []string{
		"--headless=new",
		"--disable-gpu",
		"--no-sandbox",
		"--hide-scrollbars",
		fmt.Sprintf("--virtual-time-budget=%d", opts.Int("waitMs", 5000)),
		"--user-data-dir=" + ws.Path("profile"),
	}

	switch strategy {
	case "print":
		out := ws.Path("output.pdf")
		args := append(base, "--no-pdf-header-footer", "--print-to-pdf="+out, page)
		if _, err := kit.run(ctx, deps.EngineChrome, args, subprocess.Options{}); err != nil {
			return model.ExecuteResult{}, err
		}
		artifact, err := ws.Collect(out, "pdf", opts)
		if err != nil {
			return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
		}
		return model.ExecuteResult{Output: artifact, Metadata: map[string]any{"url": page, "engine": deps.EngineChrome}}, nil

	case "screenshot":
		shot := ws.Path("page.png")
		width, height := opts.Int("width", 1280), opts.Int("height", 1800)
		args := append(base, fmt.Sprintf("--window-size=%d,%d", width, height), "--screenshot="+shot, page)
		if _, err := kit.run(ctx, deps.EngineChrome, args, subprocess.Options{}); err != nil {
			return model.ExecuteResult{}, err
		}
		png, err := ws.ReadFile("page.png")
		if err != nil {
			return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
		}
		pdf, w, h, err := screenshotPDF(png)
		if err != nil {
			return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
		}
		artifact, err := emit(ws, pdf, opts)
		if err != nil {
			return model.ExecuteResult{}, err
		}
		return model.ExecuteResult{
			Output:   artifact,
			Metadata: map[string]any{"url": page, "engine": deps.EngineChrome, "width": w, "height": h},
		}, nil

	default:
		return model.ExecuteResult{}, converter.InvalidInput("unknown url strategy %q", strategy)
	}
}

// screenshotPDF re-encodes a PNG screenshot as JPEG and wraps it in a PDF page.
func screenshotPDF(png []byte) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode screenshot: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: 90}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode screenshot: %w", err)
	}
	b := img.Bounds()
	return jpegPDF(buf.Bytes(), b.Dx(), b.Dy()), b.Dx(), b.Dy(), nil
}
