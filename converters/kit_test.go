package converters

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/lifecycle"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/report"
	"github.com/richinex/transmute/subprocess"
)

// prober reports only the named commands as installed.
func prober(installed ...string) *deps.Prober {
	return deps.NewProber().WithLookPath(func(cmd string) (string, error) {
		if slices.Contains(installed, cmd) {
			return "/usr/bin/" + cmd, nil
		}
		return "", exec.ErrNotFound
	})
}

// engines scripts subprocess runs and records their arguments.
type engines struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(ctx context.Context, name string, args []string) (subprocess.Result, error)
}

func (e *engines) runner() subprocess.Runner {
	return subprocess.RunnerFunc(func(ctx context.Context, name string, args []string, _ subprocess.Options) (subprocess.Result, error) {
		e.mu.Lock()
		e.calls = append(e.calls, append([]string{name}, args...))
		e.mu.Unlock()
		if e.fn == nil {
			return subprocess.Result{}, nil
		}
		return e.fn(ctx, name, args)
	})
}

func (e *engines) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// writeLast writes data to the final argument, where ffmpeg puts its output.
func writeLast(data []byte) func(context.Context, string, []string) (subprocess.Result, error) {
	return func(_ context.Context, _ string, args []string) (subprocess.Result, error) {
		return subprocess.Result{}, os.WriteFile(args[len(args)-1], data, 0o644)
	}
}

// fakeAI is a provider with scripted chat, speech and transcription.
type fakeAI struct {
	reply      string
	err        error
	speech     []byte
	transcript string
	heard      []string
}

func (f *fakeAI) Name() string  { return "fake" }
func (f *fakeAI) Model() string { return "test" }

func (f *fakeAI) Chat(context.Context, []llm.ChatMessage, llm.CallOptions) (llm.LLMResponse, error) {
	if f.err != nil {
		return llm.LLMResponse{}, f.err
	}
	return llm.LLMResponse{Content: f.reply}, nil
}

func (f *fakeAI) Speak(_ context.Context, text string, _ llm.SpeechOptions) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.heard = append(f.heard, text)
	return f.speech, nil
}

func (f *fakeAI) Transcribe(_ context.Context, path string, _ llm.TranscriptionOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.heard = append(f.heard, path)
	return f.transcript, nil
}

func convert(t *testing.T, spec converter.Spec, ai *llm.Facade, req converter.Request) (*report.Report, error) {
	t.Helper()
	return lifecycle.New(spec, ai).Convert(context.Background(), req)
}

func outputText(t *testing.T, rep *report.Report) string {
	t.Helper()
	if rep.Output == nil {
		t.Fatal("report carries no output")
	}
	data, err := rep.Output.Bytes()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return string(data)
}

func lastEvent(rep *report.Report) events.Event {
	return rep.Events[len(rep.Events)-1]
}

// execute runs one strategy directly inside a fresh workspace.
func execute(t *testing.T, spec converter.Spec, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	t.Helper()
	ws, err := converter.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	defer ws.Release()
	return spec.Execute(context.Background(), ws, input, strategy, opts)
}

func hasCode(issues []model.Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestEngineError(t *testing.T) {
	exit := &subprocess.ExitError{Command: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found"}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", &subprocess.NotFoundError{Command: "ffmpeg", Err: exec.ErrNotFound}, converter.ErrMissingEngine},
		{"exit", exit, converter.ErrExecuteCrash},
		{"deadline", context.DeadlineExceeded, converter.ErrExecuteTimeout},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engineError("ffmpeg", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("engineError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	var ee *subprocess.ExitError
	if err := engineError("ffmpeg", exit); !errors.As(err, &ee) || converter.CodeOf(err, "") != CodeEngineFailed {
		t.Errorf("exit error lost from chain: %v", err)
	}
	if engineError("ffmpeg", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestKitBinaryMissing(t *testing.T) {
	kit := Kit{Engines: prober()}.withDefaults()
	_, err := kit.binary(deps.EngineChrome)
	if !errors.Is(err, converter.ErrMissingEngine) {
		t.Fatalf("expected MissingEngine, got %v", err)
	}
	if !strings.Contains(err.Error(), "chromium") {
		t.Errorf("error should name the engine: %v", err)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := converter.NewRegistry()
	if err := Register(reg, Kit{Engines: prober()}); err != nil {
		t.Fatalf("register: %v", err)
	}
	want := []string{
		"audio-convert", "audio-transcribe", "csv-to-json", "html-to-md", "image-convert",
		"json-to-yaml", "pdf-to-md", "pptx-to-md", "text-to-video", "url-to-pdf", "video-convert",
	}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	for _, spec := range All(Kit{Engines: prober()}) {
		if err := spec.Validate(); err != nil {
			t.Errorf("%s: %v", spec.Descriptor.ID(), err)
		}
	}
}

// PDF to Markdown with a broken model: every attempt fails in execute and
// the run ends exhausted with an AI diagnosis.
func TestPDFMarkdownWithoutAI(t *testing.T) {
	pdftotext := &engines{fn: func(context.Context, string, []string) (subprocess.Result, error) {
		return subprocess.Result{Stdout: []byte("Annual Report\n\nRevenue grew by 12 percent.")}, nil
	}}
	ai := llm.NewFacade(&fakeAI{err: errors.New("503 service unavailable")})
	spec := PDFMarkdown(Kit{LLM: ai, Runner: pdftotext.runner(), Engines: prober("pdftotext")})

	rep, err := convert(t, spec, ai, converter.Request{
		Input:       model.BytesArtifact([]byte("%PDF-1.4 fake"), "pdf"),
		Options:     converter.NewOptions("md", nil),
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Outcome != model.OutcomeExhaustedAccepted {
		t.Fatalf("outcome = %s, want exhausted-accepted", rep.Outcome)
	}
	if len(rep.Attempts) != 3 {
		t.Errorf("attempts = %d, want 3", len(rep.Attempts))
	}
	for _, a := range rep.Attempts {
		if a.Result != nil || a.Method != "fallback" {
			t.Errorf("attempt %d: result=%v method=%s", a.Number, a.Result, a.Method)
		}
	}
	if rep.Output != nil {
		t.Error("no artifact expected")
	}
	if rep.Diagnosis == nil || !strings.Contains(rep.Diagnosis.RootCause, "AI service required") {
		t.Errorf("diagnosis = %+v", rep.Diagnosis)
	}
	if rep.Diagnosis.Severity != model.DiagnosisCritical {
		t.Errorf("severity = %s", rep.Diagnosis.Severity)
	}
}

func TestURLPDFMissingBrowserIsFatal(t *testing.T) {
	chrome := &engines{}
	spec := URLPDF(Kit{Runner: chrome.runner(), Engines: prober()})

	rep, err := convert(t, spec, nil, converter.Request{
		Input:   model.BytesArtifact([]byte("https://example.com/"), "url"),
		Options: converter.NewOptions("pdf", nil),
	})
	if !errors.Is(err, converter.ErrMissingEngine) {
		t.Fatalf("expected MissingEngine, got %v", err)
	}
	if rep.Outcome != model.OutcomeFatal || rep.Status() != "failed" {
		t.Errorf("outcome = %s, status = %s", rep.Outcome, rep.Status())
	}
	if len(rep.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(rep.Attempts))
	}
	if chrome.count() != 0 {
		t.Errorf("browser should never run, ran %d times", chrome.count())
	}
	if e := lastEvent(rep); e.Name != events.Fail || e.Payload["reason"] != "fatal" {
		t.Errorf("last event = %s %v", e.Name, e.Payload)
	}
}

func TestAudioCancellation(t *testing.T) {
	ffmpeg := &engines{fn: func(ctx context.Context, _ string, _ []string) (subprocess.Result, error) {
		<-ctx.Done()
		return subprocess.Result{}, ctx.Err()
	}}
	spec := Audio(Kit{Runner: ffmpeg.runner(), Engines: prober("ffmpeg")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	rep, err := lifecycle.New(spec, nil).Convert(ctx, converter.Request{
		Input:   model.BytesArtifact([]byte("ID3 fake mp3 payload"), "mp3"),
		Options: converter.NewOptions("wav", nil),
	})
	if !errors.Is(err, converter.ErrCancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if rep.Outcome != model.OutcomeCancelled || rep.Output != nil {
		t.Errorf("outcome = %s, output = %v", rep.Outcome, rep.Output)
	}
	if e := lastEvent(rep); e.Name != events.Fail || e.Payload["reason"] != "cancelled" {
		t.Errorf("last event = %s %v", e.Name, e.Payload)
	}
	if n := converter.LiveWorkspaces(); n != 0 {
		t.Errorf("%d workspaces left behind", n)
	}
}
