// Provider tests against a local HTTP server; error messages must not leak API keys.
package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("sk-test-invalid-key-12345xyz")
	config.BaseURL = server.URL + "/v1"
	return NewOpenAIProviderWithConfig(config, ModelOpenAIGPT4oMini, 100, 0.2)
}

func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{UserMessage("test")}, CallOptions{})
	if err == nil {
		t.Fatal("expected error from 401 response")
	}

	errStr := err.Error()
	if strings.Contains(errStr, "sk-test-invalid-key-12345xyz") {
		t.Errorf("OpenAI error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("OpenAI error exposed Authorization header: %v", errStr)
	}
}

func TestOpenAIChatAppliesCallOptions(t *testing.T) {
	var got openai.ChatCompletionRequest
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"strategy\":\"flat\"}"}}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	})

	resp, err := provider.Chat(context.Background(), []ChatMessage{
		SystemMessage("sys"),
		UserMessage("pick"),
	}, CallOptions{MaxTokens: 42, Temperature: Float32(0), Format: NewJSONObjectFormat()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != `{"strategy":"flat"}` {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("expected usage total 7, got %+v", resp.Usage)
	}
	if got.MaxTokens != 42 {
		t.Errorf("expected max_tokens 42, got %d", got.MaxTokens)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAISpeak(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	})

	audio, err := provider.Speak(context.Background(), "hello", SpeechOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "ID3fake-mp3" {
		t.Errorf("unexpected audio %q", audio)
	}
}

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"Claude", ProviderAnthropic, false},
		{"deepseek", ProviderDeepSeek, false},
		{"google", ProviderGemini, false},
		{"llama", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProviderType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseProviderType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuilderFromEnvMissingKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	_, err := ProviderDeepSeek.FromEnv()
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
	if !strings.Contains(err.Error(), "DEEPSEEK_API_KEY") {
		t.Errorf("expected env var name in error, got %v", err)
	}
}

func TestBuilderFacade(t *testing.T) {
	f, err := ProviderDeepSeek.Model(ModelDeepSeekR1).Timeout(time.Second).Facade("sk-test")
	if err != nil {
		t.Fatalf("Facade: %v", err)
	}
	if got := f.Name(); got != "deepseek/"+ModelDeepSeekR1 {
		t.Errorf("Name = %q", got)
	}
	if _, err := f.TTS(context.Background(), "hi", SpeechOptions{}); err != ErrUnavailable {
		t.Errorf("TTS without audio backend = %v, want ErrUnavailable", err)
	}

	withAudio, err := NewProviderBuilder(ProviderGemini).
		Audio(NewOpenAIProvider("sk-audio", ModelOpenAIGPT4oMini, 0, 0)).
		Facade("g-test")
	if err != nil {
		t.Fatalf("Facade with audio: %v", err)
	}
	if withAudio.speech == nil || withAudio.transcriber == nil {
		t.Error("audio backend not wired")
	}

	if _, err := ProviderOpenAI.Model("").Facade(""); err == nil {
		t.Error("empty key accepted")
	}
}
