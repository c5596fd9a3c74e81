package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenizerCache   = make(map[string]*tiktoken.Tiktoken)
	tokenizerCacheMu sync.RWMutex
)

// getTokenizer returns a cached tiktoken encoder for the given model.
func getTokenizer(model string) (*tiktoken.Tiktoken, error) {
	tokenizerCacheMu.RLock()
	if tkm, ok := tokenizerCache[model]; ok {
		tokenizerCacheMu.RUnlock()
		return tkm, nil
	}
	tokenizerCacheMu.RUnlock()

	tokenizerCacheMu.Lock()
	defer tokenizerCacheMu.Unlock()

	if tkm, ok := tokenizerCache[model]; ok {
		return tkm, nil
	}

	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown models count with cl100k_base.
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	tokenizerCache[model] = tkm
	return tkm, nil
}

// CountTokens estimates the token length of text. When no encoder can be
// loaded it falls back to four bytes per token.
func CountTokens(text, model string) int {
	tkm, err := getTokenizer(model)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(tkm.Encode(text, nil, nil))
}

// TruncateTokens cuts text to at most limit tokens.
func TruncateTokens(text, model string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	tkm, err := getTokenizer(model)
	if err != nil {
		if len(text) > limit*4 {
			return text[:limit*4]
		}
		return text
	}
	tokens := tkm.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return tkm.Decode(tokens[:limit])
}
