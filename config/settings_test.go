package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/lifecycle"
)

// clearEnv blanks every variable New reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRANSMUTE_PROVIDER", "OPENAI_API_KEY", "OPENAI_MODEL", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"DEEPSEEK_API_KEY", "DEEPSEEK_MODEL", "GEMINI_API_KEY", "GEMINI_MODEL",
		"LLM_MAX_TOKENS", "LLM_TEMPERATURE",
		"CONVERTER_MAX_ATTEMPTS", "CONVERTER_MIN_PASS_SCORE", "CONVERTER_QUALITY_THRESHOLD",
		"CONVERTER_EXECUTE_TIMEOUT", "CONVERTER_LLM_TIMEOUT", "CONVERTER_WORKSPACE_ROOT", "CONVERTER_PARALLELISM",
		"FFMPEG_PATH", "FFPROBE_PATH", "CHROME_PATH", "PDFTOTEXT_PATH",
		"TRANSMUTE_LOG_LEVEL", "TRANSMUTE_LOG_FORMAT", "TRANSMUTE_HISTORY_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestNewDefaults(t *testing.T) {
	clearEnv(t)
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LLM.Provider != ProviderNone || s.LLM.Model != "" {
		t.Errorf("llm = %+v", s.LLM)
	}
	want := ConverterConfig{
		MaxAttempts:      3,
		MinPassScore:     70,
		QualityThreshold: 60,
		ExecuteTimeout:   5 * time.Minute,
		LLMTimeout:       60 * time.Second,
		Parallelism:      4,
	}
	if diff := cmp.Diff(want, s.Converter); diff != "" {
		t.Errorf("converter (-want +got):\n%s", diff)
	}
	if s.Log.Level != "info" || s.Log.Format != "auto" {
		t.Errorf("log = %+v", s.Log)
	}

	f, err := s.Facade()
	if err != nil || f != nil {
		t.Errorf("Facade() = %v, %v; want nil facade without a provider", f, err)
	}
}

func TestNewFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSMUTE_PROVIDER", "Claude")
	t.Setenv("ANTHROPIC_MODEL", "claude-test")
	t.Setenv("CONVERTER_MAX_ATTEMPTS", "5")
	t.Setenv("CONVERTER_EXECUTE_TIMEOUT", "90s")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg")

	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LLM.Provider != "anthropic" || s.LLM.Model != "claude-test" {
		t.Errorf("llm = %+v", s.LLM)
	}
	want := lifecycle.Config{
		MaxAttempts:      5,
		MinPassScore:     70,
		QualityThreshold: 60,
		ExecuteTimeout:   90 * time.Second,
		LLMTimeout:       60 * time.Second,
	}
	if diff := cmp.Diff(want, s.Lifecycle()); diff != "" {
		t.Errorf("lifecycle (-want +got):\n%s", diff)
	}
	if s.Engines.Requirement(deps.EngineFFmpeg).Command != "/opt/ffmpeg" {
		t.Errorf("engines = %+v", s.Engines)
	}
}

func TestNewInvalid(t *testing.T) {
	tests := map[string]string{
		"TRANSMUTE_PROVIDER":        "unknown_provider",
		"CONVERTER_MAX_ATTEMPTS":    "0",
		"CONVERTER_MIN_PASS_SCORE":  "101",
		"CONVERTER_EXECUTE_TIMEOUT": "soon",
		"LLM_MAX_TOKENS":            "-1",
		"TRANSMUTE_LOG_FORMAT":      "xml",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			if _, err := New(); err == nil {
				t.Errorf("expected error for %s=%q", key, val)
			}
		})
	}
}

func TestAPIKeyFor(t *testing.T) {
	clearEnv(t)
	if _, err := APIKeyFor("openai"); err == nil {
		t.Error("expected error when OPENAI_API_KEY is unset")
	}
	t.Setenv("OPENAI_API_KEY", "test-key")
	key, err := APIKeyFor("gpt")
	if err != nil || key != "test-key" {
		t.Errorf("APIKeyFor(gpt) = %q, %v", key, err)
	}
	if _, err := APIKeyFor("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFacadeRequiresKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSMUTE_PROVIDER", "gemini")
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Facade(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestFacadeBuildsProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSMUTE_PROVIDER", "deepseek")
	t.Setenv("DEEPSEEK_API_KEY", "k")
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, err := s.Facade()
	if err != nil {
		t.Fatalf("Facade: %v", err)
	}
	if !f.Available() {
		t.Error("facade should be available")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transmute.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverlaysFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONVERTER_MIN_PASS_SCORE", "80")
	t.Setenv("CHROME_PATH", "/env/chrome")

	path := writeConfig(t, `
history = "/var/lib/transmute/history.db"

[llm]
provider = "openai"

[converter]
max_attempts = 4
llm_timeout = "15s"

[engines]
pdftotext = "/opt/poppler/pdftotext"

[log]
level = "debug"
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.LLM.Provider != "openai" || s.LLM.Model == "" {
		t.Errorf("llm = %+v", s.LLM)
	}
	c := s.Converter
	if c.MaxAttempts != 4 || c.MinPassScore != 80 || c.LLMTimeout != 15*time.Second || c.ExecuteTimeout != 5*time.Minute {
		t.Errorf("converter = %+v", c)
	}
	if s.Engines.Chrome != "/env/chrome" || s.Engines.PDFToText != "/opt/poppler/pdftotext" {
		t.Errorf("engines = %+v", s.Engines)
	}
	if s.Log.Level != "debug" || s.HistoryPath != "/var/lib/transmute/history.db" {
		t.Errorf("log = %+v, history = %q", s.Log, s.HistoryPath)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"unknown key":    "[converter]\nretries = 2\n",
		"bad duration":   "[converter]\nexecute_timeout = \"forever\"\n",
		"bad provider":   "[llm]\nprovider = \"mystery\"\n",
		"out of range":   "[converter]\nmax_attempts = 11\n",
		"malformed toml": "[converter\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(""); err != nil {
		t.Errorf("empty path: %v", err)
	}
}

func TestUseProvider(t *testing.T) {
	clearEnv(t)
	s, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.UseProvider("google"); err != nil {
		t.Fatalf("UseProvider: %v", err)
	}
	if s.LLM.Provider != "gemini" || s.LLM.Model == "" {
		t.Errorf("llm = %+v", s.LLM)
	}
	if err := s.UseProvider("off"); err != nil || s.LLM.Provider != ProviderNone {
		t.Errorf("UseProvider(off) = %v, llm = %+v", err, s.LLM)
	}
	if err := s.UseProvider("mystery"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
