package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/richinex/transmute/config"
	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/storage"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	return config.Settings{
		LLM: config.LLMConfig{Provider: config.ProviderNone},
		Converter: config.ConverterConfig{
			MaxAttempts:      3,
			MinPassScore:     70,
			QualityThreshold: 60,
			ExecuteTimeout:   time.Minute,
			LLMTimeout:       time.Second,
			WorkspaceRoot:    t.TempDir(),
			Parallelism:      2,
		},
		Log:         config.LogConfig{Level: "info", Format: "json"},
		HistoryPath: filepath.Join(t.TempDir(), "history.db"),
	}
}

// testApp wires an app whose engine probe only finds the given commands.
func testApp(t *testing.T, installed ...string) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prober := deps.NewProber().WithLookPath(func(cmd string) (string, error) {
		for _, c := range installed {
			if c == cmd {
				return "/usr/bin/" + cmd, nil
			}
		}
		return "", exec.ErrNotFound
	})
	var out, errOut bytes.Buffer
	app, err := newApp(testSettings(t), zerolog.Nop(), nil, prober, &out, &errOut)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return app, &out, &errOut
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvertWritesOutputAndHistory(t *testing.T) {
	app, out, _ := testApp(t)
	input := writeFile(t, "people.csv", "name,age\nAl,30\nBo,25\n")

	if err := app.Convert(context.Background(), ConvertOptions{Inputs: []string{input}, To: "json"}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	dest := strings.TrimSuffix(input, ".csv") + ".json"
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if want := `[{"name":"Al","age":30},{"name":"Bo","age":25}]`; strings.TrimSpace(string(data)) != want {
		t.Errorf("output = %s, want %s", data, want)
	}
	if !strings.Contains(out.String(), "Wrote "+dest) {
		t.Errorf("stdout = %s", out.String())
	}

	out.Reset()
	if err := app.History(context.Background(), HistoryOptions{Limit: 5}); err != nil {
		t.Fatalf("History: %v", err)
	}
	if !strings.Contains(out.String(), "csv-to-json") || !strings.Contains(out.String(), "success") {
		t.Errorf("history = %s", out.String())
	}
}

func TestConvertBatchIntoDirectory(t *testing.T) {
	app, out, _ := testApp(t)
	a := writeFile(t, "a.json", `{"k": 1}`)
	b := writeFile(t, "b.json", `{"b": "x"}`)
	dir := filepath.Join(t.TempDir(), "yaml")

	err := app.Convert(context.Background(), ConvertOptions{
		Inputs:    []string{a, b},
		To:        "yaml",
		Output:    dir,
		NoHistory: true,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for name, want := range map[string]string{"a.yaml": "k: 1\n", "b.yaml": "b: x\n"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil || string(data) != want {
			t.Errorf("%s = %q, %v; want %q", name, data, err, want)
		}
	}
	if !strings.Contains(out.String(), "2 converted, 0 failed") {
		t.Errorf("stdout = %s", out.String())
	}
}

func TestConvertUnroutable(t *testing.T) {
	app, _, errOut := testApp(t)
	input := writeFile(t, "notes.csv", "a\n1\n")

	err := app.Convert(context.Background(), ConvertOptions{Inputs: []string{input}, To: "docx", NoHistory: true})
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(errOut.String(), "notes.csv") {
		t.Errorf("stderr = %s", errOut.String())
	}
}

func TestConvertFatalMissingEngine(t *testing.T) {
	app, out, _ := testApp(t)
	err := app.Convert(context.Background(), ConvertOptions{
		Inputs:    []string{"https://example.com/docs"},
		To:        "pdf",
		Output:    filepath.Join(t.TempDir(), "page.pdf"),
		JSON:      true,
		NoHistory: true,
	})
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out.String(), `"outcome": "fatal"`) {
		t.Errorf("report = %s", out.String())
	}
}

func TestPlan(t *testing.T) {
	app, out, _ := testApp(t)
	input := writeFile(t, "people.csv", "name\nAl\n")
	if err := app.Plan(context.Background(), input, "json", "", ""); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !strings.HasPrefix(out.String(), "csv-to-json would start with") {
		t.Errorf("plan = %s", out.String())
	}
	if err := app.Plan(context.Background(), input, "json", "", "no-such"); err == nil {
		t.Error("expected unknown converter error")
	}
}

func TestListConvertersAndEngines(t *testing.T) {
	app, out, _ := testApp(t, "ffmpeg")
	app.ListConverters(true)
	for _, want := range []string{"csv-to-json", "pptx-to-md", "url-to-pdf", "sectioned", "animated [generative, slow speed, high quality] engine=tts+ffmpeg (not implemented)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("converters output lacks %q", want)
		}
	}

	out.Reset()
	app.ListEngines()
	text := out.String()
	if !strings.Contains(text, "/usr/bin/ffmpeg") || !strings.Contains(text, "missing") || !strings.Contains(text, "AI: none") {
		t.Errorf("engines = %s", text)
	}
}

func TestShowReportByPrefix(t *testing.T) {
	app, out, _ := testApp(t)
	input := writeFile(t, "x.json", `{"a": 1}`)
	if err := app.Convert(context.Background(), ConvertOptions{Inputs: []string{input}, To: "yaml", JSON: true}); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	archive, err := app.Archive()
	if err != nil {
		t.Fatal(err)
	}
	records, err := archive.List(context.Background(), storage.Filter{})
	archive.Close()
	if err != nil || len(records) != 1 {
		t.Fatalf("records = %v, %v", records, err)
	}
	id := records[0].ConversionID

	out.Reset()
	if err := app.ShowReport(context.Background(), id[:6]); err != nil {
		t.Fatalf("ShowReport: %v", err)
	}
	if !strings.Contains(out.String(), id) {
		t.Errorf("report = %s", out.String())
	}
}

func TestInputArtifact(t *testing.T) {
	file := writeFile(t, "deck.PPTX", "zip")
	tests := []struct {
		arg, from  string
		wantFormat string
		wantErr    bool
	}{
		{"https://example.com/a", "", "url", false},
		{file, "", "pptx", false},
		{file, "md", "md", false},
		{filepath.Join(t.TempDir(), "missing.csv"), "", "", true},
		{t.TempDir(), "", "", true},
	}
	for _, tt := range tests {
		got, err := inputArtifact(tt.arg, tt.from)
		if (err != nil) != tt.wantErr || got.Format != tt.wantFormat {
			t.Errorf("inputArtifact(%q, %q) = %q, %v", tt.arg, tt.from, got.Format, err)
		}
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, out, to string
		many           bool
		want           string
	}{
		{"/data/people.csv", "", "json", false, "/data/people.json"},
		{"/data/people.csv", "/tmp/p.json", "json", false, "/tmp/p.json"},
		{"/data/people.csv", "/out", "json", true, "/out/people.json"},
		{"/data/slides.pptx", "", "markdown", false, "/data/slides.md"},
		{"https://example.com/docs", "", "pdf", false, "example_com.pdf"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.input, tt.out, tt.to, tt.many); got != tt.want {
			t.Errorf("outputPath(%q, %q, %q, %v) = %q, want %q", tt.input, tt.out, tt.to, tt.many, got, tt.want)
		}
	}
}

func TestParseSet(t *testing.T) {
	got, err := parseSet([]string{"width=320", "quality=0.8", "nested=true", "delimiter=;", "voice = alloy"})
	if err != nil {
		t.Fatalf("parseSet: %v", err)
	}
	want := map[string]any{"width": 320, "quality": 0.8, "nested": true, "delimiter": ";", "voice": "alloy"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options (-want +got):\n%s", diff)
	}
	if _, err := parseSet([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, config.LogConfig{Level: "warn", Format: "auto"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.HasPrefix(buf.String(), `{"level":"warn"`) {
		t.Errorf("log = %s", buf.String())
	}
	if _, err := NewLogger(&buf, config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestResolveConverter(t *testing.T) {
	app, _, _ := testApp(t)
	spec, err := app.resolve("", "csv", "json")
	if err != nil || spec.Descriptor.ID() != "csv-to-json" {
		t.Errorf("resolve = %v, %v", spec.Descriptor.ID(), err)
	}
	if _, err := app.resolve("", "csv", "docx"); !errors.Is(err, converter.ErrUnsupportedTarget) {
		t.Errorf("err = %v", err)
	}
}
