package converters

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
)

// testImage returns a noisy RGBA image so encoders produce non-trivial output.
func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x*37 + y*91) % 256), A: 0xff})
		}
	}
	return img
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestImageEncodersCarryMagicBytes(t *testing.T) {
	input := model.BytesArtifact(testPNG(t, 64, 64), "png")
	spec := Image(Kit{Engines: prober()})

	for _, target := range []string{"png", "jpeg", "gif", "tiff", "bmp"} {
		for _, strategy := range []string{"direct", "optimized"} {
			t.Run(target+"/"+strategy, func(t *testing.T) {
				res, err := execute(t, spec, input, strategy, converter.NewOptions(target, nil))
				if err != nil {
					t.Fatalf("execute: %v", err)
				}
				if issues := imageChecks(input, res.Output, strategy); len(issues) != 0 {
					t.Errorf("issues = %+v", issues)
				}
				data, _ := res.Output.Bytes()
				cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
				if err != nil {
					t.Fatalf("output does not decode: %v", err)
				}
				if format != target || cfg.Width != 64 || cfg.Height != 64 {
					t.Errorf("decoded %s %dx%d", format, cfg.Width, cfg.Height)
				}
			})
		}
	}
}

func TestImageResizeKeepsAspect(t *testing.T) {
	input := model.BytesArtifact(testPNG(t, 80, 40), "png")
	res, err := execute(t, Image(Kit{Engines: prober()}), input, "direct",
		converter.NewOptions("png", map[string]any{"width": 20}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Metadata["width"] != 20 || res.Metadata["height"] != 10 {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestResize(t *testing.T) {
	src := testImage(100, 50)
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"unchanged", 0, 0, 100, 50},
		{"width only", 50, 0, 50, 25},
		{"height only", 0, 10, 20, 10},
		{"both", 30, 30, 30, 30},
		{"tiny", 1, 0, 1, 1},
	}
	for _, tt := range tests {
		for _, smooth := range []bool{false, true} {
			b := resize(src, tt.width, tt.height, smooth).Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("%s smooth=%v: %dx%d, want %dx%d", tt.name, smooth, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		}
	}
}

func TestImageWebPThroughFFmpeg(t *testing.T) {
	webp := append([]byte("RIFF\x00\x00\x00\x00WEBPVP8L"), bytes.Repeat([]byte{0x2f}, 200)...)
	ffmpeg := &engines{fn: writeLast(webp)}
	spec := Image(Kit{Runner: ffmpeg.runner(), Engines: prober("ffmpeg")})
	input := model.BytesArtifact(testPNG(t, 16, 16), "png")

	res, err := execute(t, spec, input, "direct", converter.NewOptions("webp", nil))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if issues := imageChecks(input, res.Output, "direct"); len(issues) != 0 {
		t.Errorf("issues = %+v", issues)
	}
	if ffmpeg.count() != 1 {
		t.Fatalf("ffmpeg ran %d times", ffmpeg.count())
	}
	args := ffmpeg.calls[0]
	if !slices.Contains(args, "libwebp") || !slices.Contains(args, "-lossless") {
		t.Errorf("args = %v", args)
	}
	if !strings.HasSuffix(args[len(args)-1], "output.webp") {
		t.Errorf("output arg = %s", args[len(args)-1])
	}
}

func TestImageWebPWithoutFFmpeg(t *testing.T) {
	spec := Image(Kit{Runner: (&engines{}).runner(), Engines: prober()})
	_, err := execute(t, spec, model.BytesArtifact(testPNG(t, 8, 8), "png"), "direct", converter.NewOptions("webp", nil))
	if !converter.IsFatal(err) {
		t.Errorf("expected fatal MissingEngine, got %v", err)
	}
}

func TestImageOutputPath(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out", "pic.jpeg")
	input := model.BytesArtifact(testPNG(t, 32, 32), "png")
	res, err := execute(t, Image(Kit{Engines: prober()}), input, "direct",
		converter.NewOptions("jpeg", map[string]any{converter.OutputPathOption: dest}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output.Path != dest {
		t.Errorf("path = %q, want %q", res.Output.Path, dest)
	}
	data, err := os.ReadFile(dest)
	if err != nil || !bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		t.Errorf("destination is not a jpeg (err %v)", err)
	}
}

func TestCheckImageMagic(t *testing.T) {
	tests := []struct {
		name   string
		output model.Artifact
		want   bool
	}{
		{"png ok", model.BytesArtifact([]byte{0x89, 'P', 'N', 'G', 0, 0}, "png"), false},
		{"png wrong", model.BytesArtifact([]byte("GIF89a"), "png"), true},
		{"tiff big endian", model.BytesArtifact([]byte("MM\x00*"), "tiff"), false},
		{"webp ok", model.BytesArtifact([]byte("RIFF\x01\x02\x03\x04WEBPVP8 "), "webp"), false},
		{"webp wrong", model.BytesArtifact([]byte("RIFF\x01\x02\x03\x04WAVEfmt "), "webp"), true},
		{"webp short", model.BytesArtifact([]byte("RIFF"), "webp"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hasCode(checkImageMagic(tt.output), evaluation.CodeMagicBytesMismatch)
			if got != tt.want {
				t.Errorf("mismatch = %v, want %v", got, tt.want)
			}
		})
	}
}

// Ten zero bytes never decode: both strategies crash, the best strategy is
// re-run once, and the run ends exhausted with an input diagnosis.
func TestImageUndecodableInput(t *testing.T) {
	ffmpeg := &engines{}
	spec := Image(Kit{Runner: ffmpeg.runner(), Engines: prober("ffmpeg")})

	rep, err := convert(t, spec, nil, converter.Request{
		Input:       model.BytesArtifact(make([]byte, 10), "png"),
		Options:     converter.NewOptions("jpeg", nil),
		MaxAttempts: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Outcome != model.OutcomeExhaustedAccepted {
		t.Fatalf("outcome = %s", rep.Outcome)
	}
	if got := []string{rep.Attempts[0].Strategy, rep.Attempts[1].Strategy}; !slices.Equal(got, []string{"direct", "optimized"}) {
		t.Errorf("strategies = %v", got)
	}
	for _, a := range rep.Attempts {
		if a.Evaluation == nil || !a.Evaluation.HasCode(evaluation.CodeOutputEmpty) {
			t.Errorf("attempt %d evaluation = %+v", a.Number, a.Evaluation)
		}
	}
	executes := 0
	for _, e := range rep.Events {
		if e.Name == events.Execute {
			executes++
		}
	}
	if executes != 3 {
		t.Errorf("execute events = %d, want 3 (two attempts plus the re-run)", executes)
	}
	if rep.Output != nil {
		t.Error("no artifact expected")
	}
	d := rep.Diagnosis
	if d == nil || d.Severity != model.DiagnosisCritical {
		t.Fatalf("diagnosis = %+v", d)
	}
	found := false
	for _, f := range d.Fixes {
		if f.Description == "Verify input is a readable image" {
			found = true
		}
	}
	if !found {
		t.Errorf("fixes = %+v", d.Fixes)
	}
	if ffmpeg.count() != 0 {
		t.Errorf("jpeg output should not need ffmpeg")
	}
}
