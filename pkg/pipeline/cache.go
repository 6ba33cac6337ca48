// pkg/pipeline/cache.go
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xtechon/vatflow/pkg/schema"
	"github.com/xtechon/vatflow/pkg/store"
	"github.com/xtechon/vatflow/pkg/vat"
)

// headerCache holds header definitions with an explicit expiry
// timestamp, refreshed from the store at most once per TTL
type headerCache struct {
	store     store.HeaderStore
	ttl       time.Duration
	logger    *zap.Logger
	mu        sync.RWMutex
	defs      []schema.HeaderDef
	fetchedAt time.Time
	now       func() time.Time
}

func newHeaderCache(s store.HeaderStore, ttl time.Duration, logger *zap.Logger) *headerCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &headerCache{store: s, ttl: ttl, logger: logger, now: time.Now}
}

// Headers returns the cached header definitions, refreshing when
// stale. A failed refresh serves the stale set when one exists.
func (c *headerCache) Headers(ctx context.Context) ([]schema.HeaderDef, error) {
	c.mu.RLock()
	defs, fresh := c.defs, c.defs != nil && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return defs, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defs != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.defs, nil
	}

	loaded, err := withRetry(ctx, c.logger, "list headers", func(ctx context.Context) ([]schema.HeaderDef, error) {
		return c.store.ListHeaders(ctx)
	})
	if err != nil {
		if c.defs != nil {
			c.logger.Warn("Header refresh failed, serving stale definitions", zap.Error(err))
			return c.defs, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}

	c.defs = loaded
	c.fetchedAt = c.now()
	return c.defs, nil
}

// ruleCache holds the VAT rule set with an explicit expiry timestamp
type ruleCache struct {
	store     store.RuleStore
	ttl       time.Duration
	logger    *zap.Logger
	mu        sync.RWMutex
	rules     *vat.RuleSet
	fetchedAt time.Time
	now       func() time.Time
}

func newRuleCache(s store.RuleStore, ttl time.Duration, logger *zap.Logger) *ruleCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ruleCache{store: s, ttl: ttl, logger: logger, now: time.Now}
}

// Rules returns the cached rule set, refreshing when stale
func (c *ruleCache) Rules(ctx context.Context) (*vat.RuleSet, error) {
	c.mu.RLock()
	rules, fresh := c.rules, c.rules != nil && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return rules, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rules != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.rules, nil
	}

	loaded, err := withRetry(ctx, c.logger, "list VAT rules", func(ctx context.Context) ([]vat.Rule, error) {
		return c.store.ListRules(ctx)
	})
	if err != nil {
		if c.rules != nil {
			c.logger.Warn("Rule refresh failed, serving stale rule set", zap.Error(err))
			return c.rules, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}

	set, err := vat.NewRuleSet(loaded)
	if err != nil {
		return nil, fmt.Errorf("invalid VAT rule data: %w", err)
	}

	c.rules = set
	c.fetchedAt = c.now()
	return c.rules, nil
}
