// Package config provides application settings loaded from environment
// variables and an optional TOML file.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// Load() overlays a TOML file on top; a file value wins only when present.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/lifecycle"
	"github.com/richinex/transmute/llm"
)

// ProviderNone disables every AI feature.
const ProviderNone = "none"

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Converter ConverterConfig
	Engines   deps.Paths
	Log       LogConfig
	// HistoryPath is the SQLite report archive; empty lets the CLI choose.
	HistoryPath string
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// ConverterConfig holds the lifecycle defaults.
type ConverterConfig struct {
	MaxAttempts      int
	MinPassScore     int
	QualityThreshold int
	ExecuteTimeout   time.Duration
	LLMTimeout       time.Duration
	WorkspaceRoot    string
	Parallelism      int
}

// LogConfig holds operational logging configuration.
type LogConfig struct {
	Level string
	// Format is "console", "json" or "auto" (console on a terminal).
	Format string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	kind      llm.ProviderType
	modelEnv  string
	apiKeyEnv string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {llm.ProviderOpenAI, "OPENAI_MODEL", "OPENAI_API_KEY"},
	"anthropic": {llm.ProviderAnthropic, "ANTHROPIC_MODEL", "ANTHROPIC_API_KEY"},
	"deepseek":  {llm.ProviderDeepSeek, "DEEPSEEK_MODEL", "DEEPSEEK_API_KEY"},
	"gemini":    {llm.ProviderGemini, "GEMINI_MODEL", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
	"":       ProviderNone,
	"off":    ProviderNone,
}

// New creates settings from environment variables.
// Returns an error if the provider is unknown or a variable holds an invalid value.
func New() (Settings, error) {
	var (
		s   Settings
		err error
	)

	s.LLM.Provider = normalizeProvider(os.Getenv("TRANSMUTE_PROVIDER"))
	if s.LLM.Provider != ProviderNone {
		if _, err := getProviderInfo(s.LLM.Provider); err != nil {
			return Settings{}, err
		}
		if s.LLM.Model, err = ModelFor(s.LLM.Provider); err != nil {
			return Settings{}, err
		}
	}
	if s.LLM.MaxTokens, err = getEnvUint32("LLM_MAX_TOKENS", 4096); err != nil {
		return Settings{}, err
	}
	if s.LLM.Temperature, err = getEnvFloat64("LLM_TEMPERATURE", 0.2); err != nil {
		return Settings{}, err
	}

	c := &s.Converter
	if c.MaxAttempts, err = getEnvInt("CONVERTER_MAX_ATTEMPTS", converter.DefaultMaxAttempts); err != nil {
		return Settings{}, err
	}
	if c.MinPassScore, err = getEnvInt("CONVERTER_MIN_PASS_SCORE", evaluation.DefaultMinPassScore); err != nil {
		return Settings{}, err
	}
	if c.QualityThreshold, err = getEnvInt("CONVERTER_QUALITY_THRESHOLD", lifecycle.DefaultQualityThreshold); err != nil {
		return Settings{}, err
	}
	if c.ExecuteTimeout, err = getEnvDuration("CONVERTER_EXECUTE_TIMEOUT", 5*time.Minute); err != nil {
		return Settings{}, err
	}
	if c.LLMTimeout, err = getEnvDuration("CONVERTER_LLM_TIMEOUT", llm.DefaultTimeout); err != nil {
		return Settings{}, err
	}
	if c.Parallelism, err = getEnvInt("CONVERTER_PARALLELISM", 4); err != nil {
		return Settings{}, err
	}
	c.WorkspaceRoot = os.Getenv("CONVERTER_WORKSPACE_ROOT")

	s.Engines = deps.Paths{
		FFmpeg:    os.Getenv("FFMPEG_PATH"),
		FFprobe:   os.Getenv("FFPROBE_PATH"),
		Chrome:    os.Getenv("CHROME_PATH"),
		PDFToText: os.Getenv("PDFTOTEXT_PATH"),
	}
	s.Log = LogConfig{
		Level:  getEnv("TRANSMUTE_LOG_LEVEL", "info"),
		Format: getEnv("TRANSMUTE_LOG_FORMAT", "auto"),
	}
	s.HistoryPath = os.Getenv("TRANSMUTE_HISTORY_DB")

	return s, s.Validate()
}

// MustNew creates settings from the environment.
// Panics if a variable is invalid. Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Validate checks ranges that would otherwise surface mid-conversion.
func (s Settings) Validate() error {
	c := s.Converter
	if c.MaxAttempts < 1 || c.MaxAttempts > converter.MaxAttemptsLimit {
		return fmt.Errorf("max attempts %d outside [1,%d]", c.MaxAttempts, converter.MaxAttemptsLimit)
	}
	if c.MinPassScore < 0 || c.MinPassScore > 100 {
		return fmt.Errorf("min pass score %d outside [0,100]", c.MinPassScore)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("quality threshold %d outside [0,100]", c.QualityThreshold)
	}
	if c.ExecuteTimeout <= 0 || c.LLMTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	switch s.Log.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("unknown log format: %q", s.Log.Format)
	}
	return nil
}

// UseProvider switches the chat provider and resets the model to the
// provider's configured default.
func (s *Settings) UseProvider(name string) error {
	provider := normalizeProvider(name)
	if provider == ProviderNone {
		s.LLM.Provider, s.LLM.Model = ProviderNone, ""
		return nil
	}
	model, err := ModelFor(provider)
	if err != nil {
		return err
	}
	s.LLM.Provider, s.LLM.Model = provider, model
	return nil
}

// Lifecycle returns the engine defaults.
func (s Settings) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		MaxAttempts:      s.Converter.MaxAttempts,
		MinPassScore:     s.Converter.MinPassScore,
		QualityThreshold: s.Converter.QualityThreshold,
		ExecuteTimeout:   s.Converter.ExecuteTimeout,
		LLMTimeout:       s.Converter.LLMTimeout,
		WorkspaceRoot:    s.Converter.WorkspaceRoot,
	}
}

// Facade builds the AI facade. It returns nil for ProviderNone, which every
// consumer treats as "AI unavailable". When the chat provider cannot speak
// or transcribe and OPENAI_API_KEY is set, OpenAI backs those features.
func (s Settings) Facade() (*llm.Facade, error) {
	if s.LLM.Provider == ProviderNone {
		return nil, nil
	}
	info, err := getProviderInfo(s.LLM.Provider)
	if err != nil {
		return nil, err
	}
	key, err := APIKeyFor(s.LLM.Provider)
	if err != nil {
		return nil, err
	}
	b := info.kind.
		Model(s.LLM.Model).
		MaxTokens(s.LLM.MaxTokens).
		Temperature(float32(s.LLM.Temperature)).
		Timeout(s.Converter.LLMTimeout)
	if info.kind != llm.ProviderOpenAI {
		if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
			b.Audio(llm.NewOpenAIProvider(openaiKey, llm.ModelOpenAIGPT4oMini, s.LLM.MaxTokens, float32(s.LLM.Temperature)))
		}
	}
	return b.Facade(key)
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.kind.DefaultModel(), nil
}

// SupportedProviders returns the provider names accepted by TRANSMUTE_PROVIDER.
func SupportedProviders() []string {
	return []string{"anthropic", "deepseek", "gemini", "openai", ProviderNone}
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
