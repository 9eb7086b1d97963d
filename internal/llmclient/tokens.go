// internal/llmclient/tokens.go
package llmclient

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates tokens as one per four characters, rounding up.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTokenCounter returns the model's tiktoken encoding, then cl100k_base, and
// falls back to the character heuristic when no encoding can be loaded.
func NewTokenCounter(model string, logger *zap.Logger) schemas.TokenCounter {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return &TiktokenCounter{enc: enc}
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("No tokenizer available; estimating token counts from length.", zap.String("model", model), zap.Error(err))
		return HeuristicCounter{}
	}
	return &TiktokenCounter{enc: enc}
}
