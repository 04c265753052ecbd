package identity

import (
	"context"
	"time"

	"printbroker/internal/infra/logging"
)

// TokenSource loads every access token keyed by token hash.
type TokenSource interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Reloader keeps a Cache in sync with its TokenSource.
type Reloader struct {
	source   TokenSource
	cache    *Cache
	interval time.Duration
}

func NewReloader(source TokenSource, cache *Cache, interval time.Duration) *Reloader {
	return &Reloader{source: source, cache: cache, interval: interval}
}

// LoadOnce replaces the cache with the source's tokens. On error the cache is left as is.
func (r *Reloader) LoadOnce(ctx context.Context) error {
	m, err := r.source.LoadTokens(ctx)
	if err != nil {
		return err
	}
	r.cache.Replace(m)
	return nil
}

// Start reloads at the configured interval until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload access tokens", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
