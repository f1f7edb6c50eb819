package cache

import (
	"context"
	"fmt"
	"time"

	models "marketpipe/database/models_pkg"
	"marketpipe/database/symbols"
)

const symbolTTL = time.Hour

// SymbolCache is a read-through cache for symbol metadata. Symbols change
// rarely (lot-size revisions, new listings) so a short TTL is enough; the
// database stays the source of truth and a nil Redis client degrades to
// direct lookups.
type SymbolCache struct {
	redis *RedisClient
	repo  *symbols.Repository
}

// NewSymbolCache creates a symbol cache over the given Redis client (may be nil)
func NewSymbolCache(redis *RedisClient, repo *symbols.Repository) *SymbolCache {
	return &SymbolCache{redis: redis, repo: repo}
}

// ByTicker resolves a symbol by ticker
func (c *SymbolCache) ByTicker(ctx context.Context, ticker string) (*models.Symbol, error) {
	key := fmt.Sprintf("symbol:ticker:%s", ticker)

	var cached models.Symbol
	if err := c.redis.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	sym, err := c.repo.GetByTicker(ticker)
	if err != nil || sym == nil {
		return sym, err
	}
	_ = c.redis.Set(ctx, key, sym, symbolTTL)
	return sym, nil
}

// ByID resolves a symbol by id
func (c *SymbolCache) ByID(ctx context.Context, id int64) (*models.Symbol, error) {
	key := fmt.Sprintf("symbol:id:%d", id)

	var cached models.Symbol
	if err := c.redis.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	sym, err := c.repo.GetByID(id)
	if err != nil || sym == nil {
		return sym, err
	}
	_ = c.redis.Set(ctx, key, sym, symbolTTL)
	return sym, nil
}
