package counter

import (
	"context"
	"strconv"

	"github.com/MarcReynaud/MissionPay/internal/pkg/cache"
)

const (
	webhookEventsKey     = "payments:counters:webhook_events"
	webhookDuplicatesKey = "payments:counters:webhook_duplicates"
	transfersKey         = "payments:counters:transfers"
)

// AddWebhookEvent increments the processed counter for a webhook event type in Redis
func AddWebhookEvent(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookEventsKey, eventType, 1).Err()
}

// AddWebhookDuplicate increments the dropped-duplicate counter
func AddWebhookDuplicate() error {
	ctx := context.Background()
	return cache.GetClient().Incr(ctx, webhookDuplicatesKey).Err()
}

// AddTransfer increments the per-outcome transfer counter (created/failed/skipped)
func AddTransfer(status string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, transfersKey, status, 1).Err()
}

// Snapshot returns all payment counters for the admin metrics endpoint
func Snapshot() (map[string]int64, error) {
	ctx := context.Background()
	out := make(map[string]int64)

	events, err := cache.GetClient().HGetAll(ctx, webhookEventsKey).Result()
	if err != nil {
		return nil, err
	}
	for evType, v := range events {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out["webhook:"+evType] = n
		}
	}

	transfers, err := cache.GetClient().HGetAll(ctx, transfersKey).Result()
	if err != nil {
		return nil, err
	}
	for status, v := range transfers {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out["transfer:"+status] = n
		}
	}

	dups, err := cache.GetClient().Get(ctx, webhookDuplicatesKey).Result()
	if err == nil {
		if n, err := strconv.ParseInt(dups, 10, 64); err == nil {
			out["webhook:duplicates"] = n
		}
	}

	return out, nil
}
