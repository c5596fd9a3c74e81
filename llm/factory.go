// Provider factory and Facade builder.
//
//	// Planner and spot-checks on Anthropic, speech and transcription on OpenAI
//	ai, err := llm.ProviderAnthropic.
//	    Model(llm.ModelAnthropicClaudeHaiku4).
//	    Temperature(0).
//	    Timeout(30 * time.Second).
//	    Audio(llm.NewOpenAIProvider(openaiKey, llm.ModelOpenAIGPT4oMini, 0, 0)).
//	    Facade(apiKey)
//
// A provider that implements SpeechProvider or Transcriber itself backs those
// features unless Audio names another one.

package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderType identifies a chat backend.
type ProviderType int

const (
	ProviderOpenAI ProviderType = iota
	ProviderAnthropic
	ProviderDeepSeek
	ProviderGemini
)

// Builder defaults; conversions favour short, deterministic answers.
const (
	DefaultMaxTokens   uint32  = 4096
	DefaultTemperature float32 = 0.2
)

type providerEntry struct {
	name    string
	aliases []string
	keyEnv  string
	model   string
	build   func(apiKey, model string, maxTokens uint32, temperature float32) Provider
}

var providerTable = map[ProviderType]providerEntry{
	ProviderOpenAI: {
		name: "openai", aliases: []string{"gpt"}, keyEnv: "OPENAI_API_KEY", model: ModelOpenAIGPT52,
		build: func(k, m string, n uint32, t float32) Provider { return NewOpenAIProvider(k, m, n, t) },
	},
	ProviderAnthropic: {
		name: "anthropic", aliases: []string{"claude"}, keyEnv: "ANTHROPIC_API_KEY", model: ModelAnthropicClaudeOpus45,
		build: func(k, m string, n uint32, t float32) Provider { return NewAnthropicProvider(k, m, n, t) },
	},
	ProviderDeepSeek: {
		name: "deepseek", keyEnv: "DEEPSEEK_API_KEY", model: ModelDeepSeekV32,
		build: func(k, m string, n uint32, t float32) Provider { return NewDeepSeekProvider(k, m, n, t) },
	},
	ProviderGemini: {
		name: "gemini", aliases: []string{"google"}, keyEnv: "GEMINI_API_KEY", model: ModelGeminiFlash3,
		build: func(k, m string, n uint32, t float32) Provider { return NewGeminiProvider(k, m, n, t) },
	},
}

func (p ProviderType) String() string {
	if e, ok := providerTable[p]; ok {
		return e.name
	}
	return "unknown"
}

// EnvVar names the environment variable holding the API key.
func (p ProviderType) EnvVar() string {
	return providerTable[p].keyEnv
}

// DefaultModel is used when no model is configured.
func (p ProviderType) DefaultModel() string {
	return providerTable[p].model
}

// ParseProviderType accepts canonical names and aliases, case-insensitively.
func ParseProviderType(s string) (ProviderType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, e := range providerTable {
		if s == e.name {
			return p, nil
		}
		for _, a := range e.aliases {
			if s == a {
				return p, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// FromEnv builds the provider with defaults and the key from the environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts a builder for this provider.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// ProviderBuilder configures a provider and, optionally, the Facade around it.
type ProviderBuilder struct {
	kind        ProviderType
	model       string
	maxTokens   uint32
	temperature *float32
	timeout     time.Duration
	audio       any
}

func NewProviderBuilder(kind ProviderType) *ProviderBuilder {
	return &ProviderBuilder{kind: kind}
}

func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens bounds response length. Zero keeps the default.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// Timeout bounds every Facade call. Zero keeps DefaultTimeout.
func (b *ProviderBuilder) Timeout(d time.Duration) *ProviderBuilder {
	b.timeout = d
	return b
}

// Audio sets the backend for speech and transcription. It is used for
// whichever of SpeechProvider and Transcriber it implements.
func (b *ProviderBuilder) Audio(backend any) *ProviderBuilder {
	b.audio = backend
	return b
}

// FromEnv builds the provider with the key from the environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	key, err := b.envKey()
	if err != nil {
		return nil, err
	}
	return b.APIKey(key)
}

// APIKey builds the provider with an explicit key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	e, ok := providerTable[b.kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %d", b.kind)
	}
	if key == "" {
		return nil, fmt.Errorf("%s: empty API key", e.name)
	}
	model := b.model
	if model == "" {
		model = e.model
	}
	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := DefaultTemperature
	if b.temperature != nil {
		temperature = *b.temperature
	}
	return e.build(key, model, maxTokens, temperature), nil
}

// Facade builds the provider and wraps it with the configured timeout and
// audio backend.
func (b *ProviderBuilder) Facade(key string) (*Facade, error) {
	provider, err := b.APIKey(key)
	if err != nil {
		return nil, err
	}
	f := NewFacade(provider).WithTimeout(b.timeout)
	if s, ok := b.audio.(SpeechProvider); ok {
		f.WithSpeech(s)
	}
	if t, ok := b.audio.(Transcriber); ok {
		f.WithTranscriber(t)
	}
	return f, nil
}

// FacadeFromEnv is Facade with the key from the environment.
func (b *ProviderBuilder) FacadeFromEnv() (*Facade, error) {
	key, err := b.envKey()
	if err != nil {
		return nil, err
	}
	return b.Facade(key)
}

func (b *ProviderBuilder) envKey() (string, error) {
	env := b.kind.EnvVar()
	if env == "" {
		return "", fmt.Errorf("unknown provider type: %d", b.kind)
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%s: %s environment variable not set", b.kind, env)
	}
	return key, nil
}

// OpenAI models
const (
	ModelOpenAIGPT52     = "gpt-5.2"
	ModelOpenAIGPT5      = "gpt-5"
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic models
const (
	ModelAnthropicClaudeOpus45  = "claude-opus-4-5-20251101"
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku4  = "claude-haiku-4-20250514"
)

// DeepSeek models
const (
	ModelDeepSeekV32 = "deepseek-v3.2"
	ModelDeepSeekR1  = "deepseek-r1"
)

// Gemini models
const (
	ModelGeminiPro3   = "gemini-3-pro"
	ModelGeminiFlash3 = "gemini-3-flash"
)
