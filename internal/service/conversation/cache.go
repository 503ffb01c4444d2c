package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopassist/internal/models"
	"shopassist/internal/redis"
)

// historyCache keeps a read-through copy of thread histories in redis.
// A nil cache is valid and caches nothing.
type historyCache struct {
	client *redis.Client
	logger *zap.Logger
}

func historyKey(threadID string) string {
	return fmt.Sprintf("thread:history:%s", threadID)
}

// versionKey counts appends to a thread. A load only fills the cache when no
// append landed between its database read and the cache write.
func versionKey(threadID string) string {
	return fmt.Sprintf("thread:version:%s", threadID)
}

// version returns the thread's append counter; ok is false when the cache
// should not be filled.
func (c *historyCache) version(ctx context.Context, threadID string) (int64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	v, err := c.client.Version(ctx, versionKey(threadID))
	if err != nil {
		c.logger.Warn("history cache version read failed", zap.String("thread_id", threadID), zap.Error(err))
		return 0, false
	}
	return v, true
}

func (c *historyCache) get(ctx context.Context, threadID string) ([]models.Message, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, historyKey(threadID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.logger.Warn("history cache read failed", zap.String("thread_id", threadID), zap.Error(err))
		}
		return nil, false
	}
	var history []models.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		c.logger.Warn("history cache decode failed", zap.String("thread_id", threadID), zap.Error(err))
		return nil, false
	}
	return history, true
}

func (c *historyCache) set(ctx context.Context, threadID string, version int64, history []models.Message) {
	if c == nil || c.client == nil {
		return
	}
	if history == nil {
		history = []models.Message{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		c.logger.Warn("history cache marshal failed", zap.String("thread_id", threadID), zap.Error(err))
		return
	}
	err = c.client.SetIfVersion(ctx, versionKey(threadID), version, historyKey(threadID), data)
	switch {
	case errors.Is(err, redis.ErrVersionChanged):
		c.logger.Debug("history cache fill skipped, thread changed", zap.String("thread_id", threadID))
	case err != nil:
		c.logger.Warn("history cache write failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}

func (c *historyCache) invalidate(ctx context.Context, threadID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Bump(ctx, versionKey(threadID), historyKey(threadID)); err != nil {
		c.logger.Warn("history cache invalidate failed", zap.String("thread_id", threadID), zap.Error(err))
	}
}
