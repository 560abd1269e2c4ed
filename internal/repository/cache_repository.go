package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/attenza/attenza-api/internal/models"
	appErrors "github.com/attenza/attenza-api/pkg/errors"
)

// CacheRepository wraps Redis for two concerns: the schedule-provider
// cache (routine rows keyed by class id, invalidated on version bump)
// and the pub/sub fan-out of full daily-record snapshots that backs
// live updates across tabs and devices.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into dest.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete removes a single cached key.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func snapshotChannel(userID, dateKey string) string {
	return fmt.Sprintf("attendance:%s:%s", userID, dateKey)
}

// PublishDaySnapshot broadcasts the full current state of one day's
// record. Subscribers always receive complete snapshots, never diffs.
func (r *CacheRepository) PublishDaySnapshot(ctx context.Context, record *models.DailyRecord) error {
	if r.client == nil || record == nil {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal day snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, snapshotChannel(record.UserID, record.Date), payload).Err(); err != nil {
		return fmt.Errorf("publish day snapshot: %w", err)
	}
	return nil
}

// SubscribeDaySnapshots yields each published snapshot for (user, date)
// until the context is cancelled. The returned cancel func releases the
// underlying subscription.
func (r *CacheRepository) SubscribeDaySnapshots(ctx context.Context, userID, dateKey string) (<-chan models.DailyRecord, func(), error) {
	if r.client == nil {
		ch := make(chan models.DailyRecord)
		close(ch)
		return ch, func() {}, nil
	}

	sub := r.client.Subscribe(ctx, snapshotChannel(userID, dateKey))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe day snapshots: %w", err)
	}

	out := make(chan models.DailyRecord)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var record models.DailyRecord
			if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
				r.logger.Warn("dropping malformed day snapshot", zap.Error(err))
				continue
			}
			select {
			case out <- record:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}
