package mocks

import (
	"context"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/stretchr/testify/mock"
)

// ContentGenerator is a mock type for interfaces.ContentGenerator.
// Chunks, если заданы, передаются в onChunk до возврата результата Generate.
type ContentGenerator struct {
	mock.Mock
	Chunks []string
}

func (m *ContentGenerator) Generate(ctx context.Context, req interfaces.GenerationRequest, onChunk func(chunk string) error) (string, error) {
	args := m.Called(ctx, req)
	for _, chunk := range m.Chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onChunk(chunk); err != nil {
			return "", err
		}
	}
	return args.String(0), args.Error(1)
}

func (m *ContentGenerator) Complete(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *ContentGenerator) Summarize(ctx context.Context, userID string, text string) (string, error) {
	args := m.Called(ctx, userID, text)
	return args.String(0), args.Error(1)
}

var _ interfaces.ContentGenerator = (*ContentGenerator)(nil)

// EventPublisher is a mock type for interfaces.EventPublisher
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) PublishForkEvent(ctx context.Context, event models.ForkEvent) error {
	return m.Called(ctx, event).Error(0)
}

var _ interfaces.EventPublisher = (*EventPublisher)(nil)
