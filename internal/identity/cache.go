package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"printbroker/internal/domain"
)

// Entry describes what a bearer token grants.
type Entry struct {
	Email     string
	Role      domain.Role
	RateLimit int
	ExpiresAt time.Time
}

// Expired reports whether the entry has an expiry at or before now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// HashToken is the key under which a raw bearer token is stored and cached.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Cache is the in-memory view of the access_tokens table, keyed by token hash.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the whole cache content.
func (c *Cache) Replace(m map[string]Entry) {
	cp := make(map[string]Entry, len(m))
	for k, v := range m {
		cp[k] = v
	}
	c.mu.Lock()
	c.entries = cp
	c.mu.Unlock()
}

// Ready returns true if the cache has been loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries != nil
}

// Lookup finds the entry for a raw token.
func (c *Cache) Lookup(token string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[HashToken(token)]
	return e, ok
}

// RateLimit returns the configured limit for a raw token. Unknown tokens get 0,
// which disables token rate limiting for them.
func (c *Cache) RateLimit(token string) int {
	e, ok := c.Lookup(token)
	if !ok {
		return 0
	}
	return e.RateLimit
}
