package metrics

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"docflow/pkg/agent/llm"
)

//nolint:gochecknoglobals // Codec load is expensive; share one per process
var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func loadCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.ForModel(tokenizer.GPT4)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// CountTokens approximates the token count of text with the GPT-4 encoding.
// Falls back to four characters per token when the codec is unavailable.
func CountTokens(text string) int {
	c := loadCodec()
	if c == nil {
		return len(text) / 4
	}
	count, err := c.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// UsageExtractor extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens locally. Provider usage fields differ too much to rely on.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return CountTokens(promptText), CountTokens(resp.Content)
}
