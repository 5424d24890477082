// Package dedup claims correlation ids so a redelivered inbound message is
// processed once.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lexdesk:inbound:"

// Claimer records correlation ids. Claim returns true for the first caller.
type Claimer interface {
	Claim(ctx context.Context, correlationID string) (bool, error)
}

// RedisClaimer uses SET NX with expiry so claims survive restarts.
type RedisClaimer struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisClaimer creates a Redis-backed Claimer.
func NewRedisClaimer(client redis.Cmdable, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{client: client, ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, correlationID string) (bool, error) {
	id := strings.TrimSpace(correlationID)
	if id == "" {
		return false, fmt.Errorf("correlation id is required")
	}
	ok, err := c.client.SetNX(ctx, keyPrefix+id, time.Now().UTC().Format(time.RFC3339), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim correlation id: %w", err)
	}
	return ok, nil
}

// MemoryClaimer keeps claims in process memory.
type MemoryClaimer struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryClaimer creates an in-memory Claimer.
func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{
		ttl:  ttl,
		now:  time.Now,
		seen: map[string]time.Time{},
	}
}

func (c *MemoryClaimer) Claim(_ context.Context, correlationID string) (bool, error) {
	id := strings.TrimSpace(correlationID)
	if id == "" {
		return false, fmt.Errorf("correlation id is required")
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, expires := range c.seen {
		if now.After(expires) {
			delete(c.seen, k)
		}
	}
	if _, ok := c.seen[id]; ok {
		return false, nil
	}
	c.seen[id] = now.Add(c.ttl)
	return true, nil
}
