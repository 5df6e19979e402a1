// Package cache keeps recent assistant replies in a ristretto L1 cache,
// keyed by the conversation that produced them.
package cache

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"CodeChat/internal/session"
)

// Cache is an in-process reply cache. It is safe for concurrent use.
type Cache struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// New creates a reply cache holding at most maxCostBytes of reply text.
func New(maxCostBytes int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create reply cache: %w", err)
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// GenerateCacheKey hashes the scope (agent or processing path) and the
// role and content of every message. Ids and timestamps are ignored so a
// replayed conversation maps to the same key.
func GenerateCacheKey(scope string, messages []session.Message) string {
	h := sha256.New()
	h.Write([]byte(scope))
	for _, msg := range messages {
		h.Write([]byte{0})
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the cached reply for key.
func (c *Cache) Get(key string) (string, bool) {
	val, found := c.c.Get(key)
	if !found {
		return "", false
	}
	return string(val), true
}

// Set stores reply under key and waits until it is visible to Get.
func (c *Cache) Set(key, reply string) {
	c.c.SetWithTTL(key, []byte(reply), int64(len(reply)), c.ttl)
	c.c.Wait()
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.c.Del(key)
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
