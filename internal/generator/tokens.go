package generator

import (
	"unicode/utf8"

	"novel-fork/internal/interfaces"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter считает токены кодировкой tiktoken выбранной модели.
// Для неизвестных моделей (Ollama, DeepSeek) берётся cl100k_base.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

var _ interfaces.TokenCounter = (*TokenCounter)(nil)

func NewTokenCounter(model string, logger *zap.Logger) *TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return &TokenCounter{enc: enc}
	}
	logger.Info("No tiktoken encoding for model, using fallback", zap.String("model", model), zap.String("encoding", fallbackEncoding))
	enc, err = tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		logger.Warn("tiktoken unavailable, token counts are estimated", zap.Error(err))
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (c *TokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return utf8.RuneCountInString(text)/4 + 1
	}
	return len(c.enc.Encode(text, nil, nil))
}
