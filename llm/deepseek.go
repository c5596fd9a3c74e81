// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Chat only; no speech or transcription endpoints

package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekProvider implements the Provider interface for DeepSeek.
type DeepSeekProvider struct {
	chatCompleter
}

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *DeepSeekProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL

	return &DeepSeekProvider{chatCompleter{
		client:           openai.NewClientWithConfig(config),
		model:            model,
		maxTokens:        int(maxTokens),
		temperature:      temperature,
		completionTokens: true,
	}}
}

// Name returns the provider name.
func (p *DeepSeekProvider) Name() string {
	return "deepseek"
}

// Model returns the current model.
func (p *DeepSeekProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *DeepSeekProvider) Chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (LLMResponse, error) {
	return p.chat(ctx, messages, opts)
}

var _ Provider = (*DeepSeekProvider)(nil)
