// LLM facade used by the planner, the evaluator, the diagnostic engine and
// the generative converters.
//
// Information Hiding:
// - Which provider is configured, or whether any is
// - Speech and transcription capability discovery
// - Per-call timeout and JSON coercion of model output

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	ijson "github.com/richinex/transmute/internal/json"
)

// ErrUnavailable is returned by every facade call when no provider is configured
// or the provider lacks the requested capability.
var ErrUnavailable = errors.New("llm: AI service unavailable")

// DefaultTimeout bounds a single facade call.
const DefaultTimeout = 60 * time.Second

// Facade is the narrow AI surface the framework depends on.
// A nil *Facade, or one built with a nil provider, is unavailable.
type Facade struct {
	provider    Provider
	speech      SpeechProvider
	transcriber Transcriber
	timeout     time.Duration
}

// NewFacade wraps a provider. Speech and transcription are picked up when the
// provider implements them.
func NewFacade(provider Provider) *Facade {
	f := &Facade{provider: provider, timeout: DefaultTimeout}
	if s, ok := provider.(SpeechProvider); ok {
		f.speech = s
	}
	if t, ok := provider.(Transcriber); ok {
		f.transcriber = t
	}
	return f
}

// WithSpeech sets the text-to-speech backend.
func (f *Facade) WithSpeech(s SpeechProvider) *Facade {
	f.speech = s
	return f
}

// WithTranscriber sets the speech-to-text backend.
func (f *Facade) WithTranscriber(t Transcriber) *Facade {
	f.transcriber = t
	return f
}

// WithTimeout sets the per-call bound. Zero keeps the current bound.
func (f *Facade) WithTimeout(d time.Duration) *Facade {
	if d > 0 {
		f.timeout = d
	}
	return f
}

// Available reports whether chat calls can be attempted.
func (f *Facade) Available() bool {
	return f != nil && f.provider != nil
}

// Name returns "provider/model", or "none".
func (f *Facade) Name() string {
	if !f.Available() {
		return "none"
	}
	return f.provider.Name() + "/" + f.provider.Model()
}

// ChatRequest is one chat call.
type ChatRequest struct {
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature *float32
	// Feature labels the caller (plan, spot-check, diagnose, enhance) for logs.
	Feature string
}

// Chat sends a chat request and returns the response text.
func (f *Facade) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if !f.Available() {
		return "", ErrUnavailable
	}
	ctx, cancel := f.bound(ctx)
	defer cancel()

	messages := make([]ChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, SystemMessage(req.System))
	}
	messages = append(messages, req.Messages...)

	resp, err := f.provider.Chat(ctx, messages, CallOptions{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm %s: %w", req.Feature, err)
	}
	return resp.Content, nil
}

// JSONOptions configures a JSON call.
type JSONOptions struct {
	// Profile selects a canned system prompt; empty uses the generic one.
	Profile     string
	Feature     string
	Temperature *float32
	MaxTokens   int
}

var jsonProfiles = map[string]string{
	"":        "You answer with a single JSON object and nothing else.",
	"planner": "You choose conversion strategies. Answer with a single JSON object and nothing else.",
	"judge":   "You grade conversion outputs strictly and consistently. Answer with a single JSON object and nothing else.",
	"analyst": "You diagnose failed file conversions. Answer with a single JSON object and nothing else.",
}

// JSON sends prompt and decodes the JSON object in the reply into out.
// The reply is untrusted; callers validate the decoded fields.
func (f *Facade) JSON(ctx context.Context, prompt string, opts JSONOptions, out any) error {
	if !f.Available() {
		return ErrUnavailable
	}
	ctx, cancel := f.bound(ctx)
	defer cancel()

	system, ok := jsonProfiles[opts.Profile]
	if !ok {
		system = jsonProfiles[""]
	}
	resp, err := f.provider.Chat(ctx, []ChatMessage{
		SystemMessage(system),
		UserMessage(prompt),
	}, CallOptions{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Format:      NewJSONObjectFormat(),
	})
	if err != nil {
		return fmt.Errorf("llm %s: %w", opts.Feature, err)
	}
	if err := ijson.ExtractJSONFromResponseWithType(resp.Content, out); err != nil {
		return fmt.Errorf("llm %s: %w", opts.Feature, err)
	}
	return nil
}

// TTS synthesizes text into audio bytes.
func (f *Facade) TTS(ctx context.Context, text string, opts SpeechOptions) ([]byte, error) {
	if f == nil || f.speech == nil {
		return nil, ErrUnavailable
	}
	ctx, cancel := f.bound(ctx)
	defer cancel()
	return f.speech.Speak(ctx, text, opts)
}

// Transcribe turns an audio file into text.
func (f *Facade) Transcribe(ctx context.Context, audioPath string, opts TranscriptionOptions) (string, error) {
	if f == nil || f.transcriber == nil {
		return "", ErrUnavailable
	}
	ctx, cancel := f.bound(ctx)
	defer cancel()
	return f.transcriber.Transcribe(ctx, audioPath, opts)
}

func (f *Facade) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// Float32 returns a pointer to v, for optional temperatures.
func Float32(v float32) *float32 {
	return &v
}
