// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// CallOptions overrides provider defaults for a single call.
// Zero values keep the provider's configured defaults.
type CallOptions struct {
	MaxTokens   int
	Temperature *float32
	Format      *ResponseFormat
}

// ResponseFormatType defines the type of response format.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat specifies how the LLM should format its response.
type ResponseFormat struct {
	Type       ResponseFormatType `json:"type"`
	JSONSchema *JSONSchemaFormat  `json:"json_schema,omitempty"`
}

// JSONSchemaFormat defines a JSON schema for structured outputs.
type JSONSchemaFormat struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
	Strict      bool            `json:"strict"`
}

// NewJSONObjectFormat creates a JSON object response format.
func NewJSONObjectFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONObject}
}

// SpeechOptions tunes text-to-speech synthesis.
type SpeechOptions struct {
	Voice  string
	Speed  float64
	Format string // mp3, wav, opus, aac, flac
	Model  string
}

// TranscriptionOptions tunes speech-to-text.
type TranscriptionOptions struct {
	Language string
	Prompt   string
	Format   string // text, srt, vtt, json
}
