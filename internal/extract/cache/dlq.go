package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"docgraph/internal/doerr"
)

// maxAttempts is the retry budget: backoff 1s, 5s, 25s, max 3 attempts.
const maxAttempts = 3

var backoffSchedule = []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second}

// failedRetention is how long an item stays in dlq:failed:* before it is
// eligible for cleanup.
const failedRetention = 30 * 24 * time.Hour

// Item is one unit (document or window) awaiting retry or quarantine.
type Item struct {
	Key         string          `json:"key"`
	PayloadHead string          `json:"payload_head"`
	CauseCode   doerr.Code      `json:"cause_code"`
	Attempts    int             `json:"attempts"`
	FirstSeen   time.Time       `json:"first_seen"`
	LastAttempt time.Time       `json:"last_attempt"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// DLQ is the failure queue: `dlq:pending:*` holds items still within their
// retry budget; `dlq:failed:*` holds quarantined items past it.
type DLQ struct {
	client redis.UniversalClient
}

// NewDLQ constructs a DLQ over addr.
func NewDLQ(addr string) (*DLQ, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("extract dlq: redis ping failed: %w", err)
	}
	return &DLQ{client: client}, nil
}

func pendingKey(key string) string { return "dlq:pending:" + key }
func failedKey(key string) string  { return "dlq:failed:" + key }

// Push records a failed unit. If the item is new, it's inserted at attempt
// 1 in dlq:pending. If an existing pending item has now exhausted
// maxAttempts, it's moved to dlq:failed with 30-day retention and Push
// returns escalated=true.
func (q *DLQ) Push(ctx context.Context, key string, cause doerr.Code, payloadHead string, payload json.RawMessage) (escalated bool, err error) {
	existing, _ := q.get(ctx, pendingKey(key))
	now := time.Now()
	item := Item{Key: key, PayloadHead: payloadHead, CauseCode: cause, FirstSeen: now, LastAttempt: now, Payload: payload}
	if existing != nil {
		item.FirstSeen = existing.FirstSeen
		item.Attempts = existing.Attempts + 1
	} else {
		item.Attempts = 1
	}

	if item.Attempts >= maxAttempts {
		if err := q.set(ctx, failedKey(key), item, failedRetention); err != nil {
			return false, err
		}
		_ = q.client.Del(ctx, pendingKey(key)).Err()
		return true, nil
	}
	if err := q.set(ctx, pendingKey(key), item, 0); err != nil {
		return false, err
	}
	return false, nil
}

// NextBackoff returns the backoff duration for the item's next attempt,
// with ±25% jitter. attemptsSoFar is 1-based.
func NextBackoff(attemptsSoFar int) time.Duration {
	idx := attemptsSoFar - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	base := backoffSchedule[idx]
	jitter := (rand.Float64()*0.5 - 0.25) * float64(base)
	return base + time.Duration(jitter)
}

// Get returns a pending item, if present.
func (q *DLQ) Get(ctx context.Context, key string) (*Item, bool) {
	item, err := q.get(ctx, pendingKey(key))
	if err != nil || item == nil {
		return nil, false
	}
	return item, true
}

// Resolve removes a key from dlq:pending after a successful retry.
func (q *DLQ) Resolve(ctx context.Context, key string) error {
	return q.client.Del(ctx, pendingKey(key)).Err()
}

// ScanPending lists every key currently in dlq:pending:*, for the scheduled
// reaper to drain.
func (q *DLQ) ScanPending(ctx context.Context) ([]string, error) {
	var out []string
	iter := q.client.Scan(ctx, 0, "dlq:pending:*", 200).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

// PendingDepth reports the current dlq:pending:* size (for the `extract
// status` metrics table).
func (q *DLQ) PendingDepth(ctx context.Context) (int, error) {
	keys, err := q.ScanPending(ctx)
	return len(keys), err
}

func (q *DLQ) get(ctx context.Context, redisKey string) (*Item, error) {
	val, err := q.client.Get(ctx, redisKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal([]byte(val), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (q *DLQ) set(ctx context.Context, redisKey string, item Item, ttl time.Duration) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, redisKey, data, ttl).Err()
}

// Close closes the underlying Redis client.
func (q *DLQ) Close() error {
	return q.client.Close()
}
