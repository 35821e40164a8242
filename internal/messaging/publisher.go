package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ interfaces.EventPublisher = (*ForkEventPublisher)(nil)

// ForkEventPublisher отправляет события форков в очередь RabbitMQ.
type ForkEventPublisher struct {
	channels  channelFactory
	queueName string
	logger    *zap.Logger
}

func NewForkEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*ForkEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}
	return newForkEventPublisher(connChannels(conn), queueName, logger)
}

func newForkEventPublisher(channels channelFactory, queueName string, logger *zap.Logger) (*ForkEventPublisher, error) {
	p := &ForkEventPublisher{
		channels:  channels,
		queueName: queueName,
		logger:    logger.Named("ForkEventPublisher").With(zap.String("queue", queueName)),
	}
	// Проверим, что можем создать канал и объявить очередь при инициализации
	ch, err := p.channels()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	if _, err := declareQueue(ch, queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}
	p.logger.Info("ForkEventPublisher инициализирован")
	return p, nil
}

func (p *ForkEventPublisher) PublishForkEvent(ctx context.Context, event models.ForkEvent) error {
	log := p.logger.With(zap.String("type", string(event.Type)), zap.Int64("storyID", event.StoryID))
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fork event: %w", err)
	}

	ch, err := p.channels()
	if err != nil {
		log.Error("Не удалось открыть канал для публикации", zap.Error(err))
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx,
		"",          // exchange (default)
		p.queueName, // routing key (имя очереди)
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		log.Error("Ошибка публикации события форка", zap.Error(err))
		return fmt.Errorf("failed to publish fork event: %w", err)
	}
	log.Debug("Fork event published")
	return nil
}
