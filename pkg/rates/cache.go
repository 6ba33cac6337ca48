// pkg/rates/cache.go
package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source supplies raw rate data for the cache, either from a live feed
// or a persisted store
type Source interface {
	// GetRates returns date->currency->rate for the window the source
	// covers. Implementations must honor ctx cancellation.
	GetRates(ctx context.Context) (map[string]map[string]float64, error)
}

// Cache owns a rate Table together with its expiry timestamp and
// refresh method. The table is refreshed from the source at most once
// per TTL; a stale table is still served when the source is
// unavailable.
type Cache struct {
	base      string
	source    Source
	ttl       time.Duration
	logger    *zap.Logger
	mu        sync.RWMutex
	table     *Table
	fetchedAt time.Time
	now       func() time.Time
}

// NewCache creates a rate cache backed by the given source
func NewCache(base string, source Source, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("rate source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Cache{
		base:   base,
		source: source,
		ttl:    ttl,
		logger: logger.Named("ratecache"),
		now:    time.Now,
	}, nil
}

// Table returns the current rate table, refreshing it from the source
// when the TTL has elapsed. When a refresh fails and a previous table
// exists, the stale table is served and the failure logged.
func (c *Cache) Table(ctx context.Context) (*Table, error) {
	c.mu.RLock()
	table, fresh := c.table, c.table != nil && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return table, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock
	if c.table != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.table, nil
	}

	raw, err := c.source.GetRates(ctx)
	if err != nil {
		if c.table != nil {
			c.logger.Warn("Rate refresh failed, serving stale table",
				zap.Time("fetchedAt", c.fetchedAt),
				zap.Error(err))
			return c.table, nil
		}
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}

	fetched, err := NewTable(c.base, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate table: %w", err)
	}

	c.table = fetched
	c.fetchedAt = c.now()

	c.logger.Info("Rate table refreshed",
		zap.Int("dates", fetched.Len()),
		zap.Duration("ttl", c.ttl))

	return c.table, nil
}

// Invalidate forces the next Table call to refresh from the source
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}
