package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"policyrag/internal/index"
)

// DocumentCache stores embedded chunk entries in Redis keyed by
// normalized document reference, so restarts and sibling processes can
// skip re-extracting and re-embedding a document they have seen before.
type DocumentCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewDocumentCache(client *redisv9.Client, ttl time.Duration) *DocumentCache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &DocumentCache{client: client, ttl: ttl}
}

func (c *DocumentCache) Get(ctx context.Context, ref string) ([]index.Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(ref)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get document failed: %w", err)
	}

	var entries []index.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached document failed: %w", err)
	}
	return entries, true, nil
}

func (c *DocumentCache) Set(ctx context.Context, ref string, entries []index.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal document cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(ref), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set document failed: %w", err)
	}
	return nil
}

func (c *DocumentCache) Delete(ctx context.Context, ref string) error {
	if err := c.client.Del(ctx, c.key(ref)).Err(); err != nil {
		return fmt.Errorf("redis delete document failed: %w", err)
	}
	return nil
}

// key hashes the reference so arbitrary URLs make safe Redis keys.
func (c *DocumentCache) key(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return "policyrag:doc:" + hex.EncodeToString(sum[:16])
}
