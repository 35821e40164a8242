package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"novel-fork/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	chapterConsumerTag = "novel-fork-chapter-consumer"
	processTimeout     = 10 * time.Second
)

// TreeInvalidator сбрасывает кэш дерева веток истории.
type TreeInvalidator interface {
	InvalidateTree(ctx context.Context, storyID int64) error
}

// ChapterEventConsumer слушает публикации авторских глав и сбрасывает кэш дерева.
type ChapterEventConsumer struct {
	channels    channelFactory
	queueName   string
	invalidator TreeInvalidator
	logger      *zap.Logger
	stopChannel chan struct{}
	stopOnce    sync.Once
}

func NewChapterEventConsumer(conn *amqp.Connection, queueName string, invalidator TreeInvalidator, logger *zap.Logger) *ChapterEventConsumer {
	return newChapterEventConsumer(connChannels(conn), queueName, invalidator, logger)
}

func newChapterEventConsumer(channels channelFactory, queueName string, invalidator TreeInvalidator, logger *zap.Logger) *ChapterEventConsumer {
	return &ChapterEventConsumer{
		channels:    channels,
		queueName:   queueName,
		invalidator: invalidator,
		logger:      logger.Named("ChapterEventConsumer").With(zap.String("queue", queueName)),
		stopChannel: make(chan struct{}),
	}
}

// StartConsuming блокируется до Stop или закрытия канала доставки.
func (c *ChapterEventConsumer) StartConsuming() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.channels()
	if err != nil {
		return fmt.Errorf("не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	q, err := declareQueue(ch, c.queueName)
	if err != nil {
		return fmt.Errorf("не удалось объявить очередь '%s': %w", c.queueName, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("не удалось установить QoS: %w", err)
	}
	msgs, err := ch.Consume(
		q.Name,
		chapterConsumerTag,
		false, // auto-ack = false
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("не удалось зарегистрировать консьюмера: %w", err)
	}

	c.logger.Info("Консьюмер запущен, ожидание сообщений...")
	for {
		select {
		case <-c.stopChannel:
			c.logger.Info("Получен сигнал остановки консьюмера")
			return nil
		case d, ok := <-msgs:
			if !ok {
				c.logger.Info("Канал сообщений закрыт, консьюмер завершает работу")
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *ChapterEventConsumer) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Инициирована остановка консьюмера...")
		close(c.stopChannel)
	})
}

func (c *ChapterEventConsumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag))

	var event models.ChapterPublishedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil || event.StoryID <= 0 {
		log.Error("Некорректное событие публикации главы", zap.Error(err), zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Ошибка Nack сообщения", zap.Error(nackErr))
		}
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()
	if err := c.invalidator.InvalidateTree(processCtx, event.StoryID); err != nil {
		// Без повтора: кэш всё равно истечёт по TTL.
		log.Warn("Failed to invalidate branch tree", zap.Int64("storyID", event.StoryID), zap.Error(err))
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("Ошибка Ack сообщения", zap.Error(ackErr))
		return
	}
	log.Debug("Chapter event processed", zap.Int64("storyID", event.StoryID), zap.Int64("chapterID", event.ChapterID))
}
