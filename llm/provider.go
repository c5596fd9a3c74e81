// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (LLMResponse, error)
}

// SpeechProvider is implemented by providers that synthesize speech.
type SpeechProvider interface {
	Speak(ctx context.Context, text string, opts SpeechOptions) ([]byte, error)
}

// Transcriber is implemented by providers that transcribe audio files.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscriptionOptions) (string, error)
}
