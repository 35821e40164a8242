package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"novel-fork/internal/interfaces"
	"novel-fork/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ interfaces.PreviewRepository = (*redisPreviewRepository)(nil)

const previewKeyPrefix = "ai_preview:"

// redisPreviewRepository хранит буфер предпросмотра форка одним JSON-списком
// со скользящим TTL: каждое обращение продлевает жизнь буфера.
type redisPreviewRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisPreviewRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.PreviewRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisPreviewRepository{client: client, ttl: ttl, logger: logger.Named("RedisPreviewRepo")}
}

func previewKey(forkID int64) string {
	return fmt.Sprintf("%s%d", previewKeyPrefix, forkID)
}

func (r *redisPreviewRepository) List(ctx context.Context, forkID int64) ([]models.PreviewChapter, error) {
	key := previewKey(forkID)
	pipe := r.client.TxPipeline()
	getCmd := pipe.Get(ctx, key)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("Failed to read preview buffer", zap.Int64("forkID", forkID), zap.Error(err))
		return nil, fmt.Errorf("read preview buffer: %w", err)
	}

	raw, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.PreviewChapter{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preview buffer: %w", err)
	}

	var chapters []models.PreviewChapter
	if err := json.Unmarshal(raw, &chapters); err != nil {
		// Повреждённый буфер не должен блокировать чтение: считаем его пустым.
		r.logger.Warn("Corrupted preview buffer, treating as empty", zap.Int64("forkID", forkID), zap.Error(err))
		return []models.PreviewChapter{}, nil
	}
	return chapters, nil
}

func (r *redisPreviewRepository) Replace(ctx context.Context, forkID int64, chapters []models.PreviewChapter) error {
	if len(chapters) == 0 {
		return r.Clear(ctx, forkID)
	}
	raw, err := json.Marshal(chapters)
	if err != nil {
		return fmt.Errorf("marshal preview buffer: %w", err)
	}
	if err := r.client.Set(ctx, previewKey(forkID), raw, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to write preview buffer", zap.Int64("forkID", forkID), zap.Error(err))
		return fmt.Errorf("write preview buffer: %w", err)
	}
	return nil
}

func (r *redisPreviewRepository) Clear(ctx context.Context, forkID int64) error {
	if err := r.client.Del(ctx, previewKey(forkID)).Err(); err != nil {
		r.logger.Error("Failed to clear preview buffer", zap.Int64("forkID", forkID), zap.Error(err))
		return fmt.Errorf("clear preview buffer: %w", err)
	}
	return nil
}
