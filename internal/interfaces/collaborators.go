package interfaces

import (
	"context"
	"time"

	"novel-fork/internal/models"
)

// ForkLocker - взаимное исключение писателей для форка или истории.
type ForkLocker interface {
	// TryLock не ждёт: если ключ занят, возвращает models.ErrConflict.
	TryLock(ctx context.Context, key string) (func(), error)
	// Lock ждёт освобождения ключа не дольше wait.
	Lock(ctx context.Context, key string, wait time.Duration) (func(), error)
}

// GenerationRequest - вход генератора: готовые промпты и подсказка по объёму.
type GenerationRequest struct {
	UserID        string
	SystemPrompt  string
	UserInput     string
	WordCountHint int
}

// ContentGenerator - внешний генератор текста.
type ContentGenerator interface {
	// Generate стримит ответ в onChunk и возвращает полный текст.
	// Ошибка onChunk или отмена ctx прерывает генерацию.
	Generate(ctx context.Context, req GenerationRequest, onChunk func(chunk string) error) (string, error)
	Complete(ctx context.Context, req GenerationRequest) (string, error)
	Summarize(ctx context.Context, userID string, text string) (string, error)
}

type EventPublisher interface {
	PublishForkEvent(ctx context.Context, event models.ForkEvent) error
}

// TokenCounter оценивает длину текста в токенах модели генератора.
type TokenCounter interface {
	CountTokens(text string) int
}
