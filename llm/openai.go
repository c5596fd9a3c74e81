// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Speech synthesis and Whisper transcription endpoints

package llm

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// chatCompleter is the Chat Completions call shared by OpenAI-compatible APIs.
type chatCompleter struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	// completionTokens sends max_completion_tokens instead of max_tokens.
	completionTokens bool
}

func (c chatCompleter) chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (LLMResponse, error) {
	maxTokens := c.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := c.temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertToOpenAIMessages(messages),
		Temperature: temperature,
	}
	if c.completionTokens {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	if opts.Format != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(opts.Format.Type),
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, Usage: usage}, nil
}

// OpenAIProvider implements Provider, SpeechProvider and Transcriber for OpenAI.
type OpenAIProvider struct {
	chatCompleter
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return NewOpenAIProviderWithConfig(openai.DefaultConfig(apiKey), model, maxTokens, temperature)
}

// NewOpenAIProviderWithConfig creates an OpenAI provider from an explicit
// client config, for proxies and compatible endpoints.
func NewOpenAIProviderWithConfig(config openai.ClientConfig, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{chatCompleter{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (LLMResponse, error) {
	return p.chat(ctx, messages, opts)
}

// Speak synthesizes text into audio bytes.
func (p *OpenAIProvider) Speak(ctx context.Context, text string, opts SpeechOptions) ([]byte, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.VoiceAlloy,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          1.0,
	}
	if opts.Model != "" {
		req.Model = openai.SpeechModel(opts.Model)
	}
	if opts.Voice != "" {
		req.Voice = openai.SpeechVoice(opts.Voice)
	}
	if opts.Format != "" {
		req.ResponseFormat = openai.SpeechResponseFormat(opts.Format)
	}
	if opts.Speed > 0 {
		req.Speed = opts.Speed
	}

	resp, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return audio, nil
}

// Transcribe runs Whisper over an audio file.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audioPath string, opts TranscriptionOptions) (string, error) {
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Prompt:   opts.Prompt,
		Language: opts.Language,
		Format:   openai.AudioResponseFormatText,
	}
	if opts.Format != "" {
		req.Format = openai.AudioResponseFormat(opts.Format)
	}

	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}

// convertToOpenAIMessages converts our ChatMessage to openai.ChatCompletionMessage
func convertToOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

var (
	_ Provider       = (*OpenAIProvider)(nil)
	_ SpeechProvider = (*OpenAIProvider)(nil)
	_ Transcriber    = (*OpenAIProvider)(nil)
)
