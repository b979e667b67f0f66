package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// dispatchTTL bounds how long a fan-out may hold a campaign. A crashed
	// dispatcher frees the campaign for a later send-campaign call once the
	// key expires.
	dispatchTTL = 10 * time.Minute

	dispatchingMarker = "dispatching"
)

// ErrDispatchInProgress indicates another instance is already fanning out
// the campaign.
var ErrDispatchInProgress = errors.New("campaign dispatch already in progress")

// DispatchLock guarantees a campaign is fanned out by at most one instance
// at a time, using SET NX on a per-campaign key.
type DispatchLock struct {
	client *Client
	logger *zap.Logger
}

// NewDispatchLock creates a new dispatch lock service.
func NewDispatchLock(client *Client, logger *zap.Logger) *DispatchLock {
	return &DispatchLock{
		client: client,
		logger: logger,
	}
}

func (l *DispatchLock) buildKey(campaignID string) string {
	return fmt.Sprintf("dispatch:%s", campaignID)
}

// Acquire takes the fan-out lock for a campaign. Returns
// ErrDispatchInProgress when another dispatcher holds it.
func (l *DispatchLock) Acquire(ctx context.Context, campaignID string) error {
	key := l.buildKey(campaignID)

	set, err := l.client.rdb.SetNX(ctx, key, dispatchingMarker, dispatchTTL).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		l.logger.Debug("dispatch lock contention",
			zap.String("campaign_id", campaignID),
		)
		return ErrDispatchInProgress
	}

	return nil
}

// Release frees the lock after the fan-out completes. Best-effort: an
// expired or missing key is not an error.
func (l *DispatchLock) Release(ctx context.Context, campaignID string) error {
	if err := l.client.rdb.Del(ctx, l.buildKey(campaignID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
