// Package cache is the extraction cache + DLQ: a Redis-backed,
// version-invalidated result cache for Tier C window outputs (Tier B does
// not consult it), and a
// failure queue with bounded retry and quarantine.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is the fixed cache lifetime: 7 days.
const TTL = 7 * 24 * time.Hour

// Entry is a cached result plus the versions it was computed under.
type Entry struct {
	Result  json.RawMessage `json:"result"`
	Version string          `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
}

// Cache is a content-hash keyed store mapping cache_key -> {result,
// version, saved_at}. It must tolerate loss (eviction, crash) — Redis is
// never the source of truth.
type Cache struct {
	client redis.UniversalClient
}

// New constructs a Cache over addr, pinging to validate the connection.
func New(addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("extract cache: redis ping failed: %w", err)
	}
	return &Cache{client: client}, nil
}

// Key computes cache_key = hash(window_text || extractor_version ||
// schema_version).
func Key(windowText, extractorVersion, schemaVersion string) string {
	h := sha256.New()
	h.Write([]byte(windowText))
	h.Write([]byte{0})
	h.Write([]byte(extractorVersion))
	h.Write([]byte{0})
	h.Write([]byte(schemaVersion))
	return "extract:cache:" + hex.EncodeToString(h.Sum(nil))
}

// Ping checks Redis reachability, for the health surface.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get looks up key. A stored entry whose Version doesn't match
// currentVersion is treated as a miss (version invalidation) and is
// not returned — the caller recomputes and overwrites it via Set.
func (c *Cache) Get(ctx context.Context, key, currentVersion string) (Entry, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return Entry{}, false
	}
	if e.Version != currentVersion {
		return Entry{}, false
	}
	return e, true
}

// Set stores result under key with the fixed 7-day TTL.
func (c *Cache) Set(ctx context.Context, key string, result json.RawMessage, version string) error {
	e := Entry{Result: result, Version: version, SavedAt: time.Now()}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, TTL).Err()
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
