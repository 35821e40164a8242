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

var _ interfaces.BranchTreeCache = (*redisBranchTreeCache)(nil)

type redisBranchTreeCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisBranchTreeCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) interfaces.BranchTreeCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisBranchTreeCache{client: client, ttl: ttl, logger: logger.Named("RedisBranchTreeCache")}
}

func treeKey(storyID int64) string {
	return fmt.Sprintf("branch_tree:%d", storyID)
}

func (c *redisBranchTreeCache) Get(ctx context.Context, storyID int64) ([]models.StoryChapter, bool, error) {
	raw, err := c.client.Get(ctx, treeKey(storyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read branch tree cache: %w", err)
	}
	var chapters []models.StoryChapter
	if err := json.Unmarshal(raw, &chapters); err != nil {
		c.logger.Warn("Corrupted branch tree cache entry", zap.Int64("storyID", storyID), zap.Error(err))
		return nil, false, nil
	}
	return chapters, true, nil
}

func (c *redisBranchTreeCache) Set(ctx context.Context, storyID int64, chapters []models.StoryChapter) error {
	raw, err := json.Marshal(chapters)
	if err != nil {
		return fmt.Errorf("marshal branch tree: %w", err)
	}
	if err := c.client.Set(ctx, treeKey(storyID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write branch tree cache: %w", err)
	}
	return nil
}

func (c *redisBranchTreeCache) Invalidate(ctx context.Context, storyID int64) error {
	if err := c.client.Del(ctx, treeKey(storyID)).Err(); err != nil {
		c.logger.Error("Failed to invalidate branch tree cache", zap.Int64("storyID", storyID), zap.Error(err))
		return fmt.Errorf("invalidate branch tree cache: %w", err)
	}
	return nil
}
