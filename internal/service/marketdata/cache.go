package marketdata

import (
	"context"
	"errors"
	"time"

	"Kavach/internal/domain/models"
	"Kavach/pkg/cache"
	applogger "Kavach/pkg/logger"
)

// resultCache stores successful fetch results only. A nil *resultCache is
// a disabled cache.
type resultCache struct {
	store      cache.Service
	latestTTL  time.Duration
	historyTTL time.Duration
	logger     *applogger.Logger
}

// WithCache enables caching of successful results in store.
func WithCache(store cache.Service, latestTTL, historyTTL time.Duration) Option {
	return func(f *Fetcher) {
		if store == nil {
			return
		}
		f.cache = &resultCache{store: store, latestTTL: latestTTL, historyTTL: historyTTL, logger: f.logger}
	}
}

func latestKey(ticker string) string { return cache.GenerateKey("md:latest", ticker) }

func historyKey(ticker string, days int) string {
	return cache.GenerateKeyWithParams("md:history", ticker, days)
}

func (c *resultCache) get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}
	err := c.store.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug("fetch cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	return err == nil
}

func (c *resultCache) put(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	if err := c.store.Set(ctx, key, v, ttl); err != nil {
		c.logger.Debug("fetch cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (c *resultCache) getLatest(ctx context.Context, ticker string, dest *float64) bool {
	return c.get(ctx, latestKey(ticker), dest)
}

func (c *resultCache) putLatest(ctx context.Context, ticker string, price float64) {
	if c != nil {
		c.put(ctx, latestKey(ticker), price, c.latestTTL)
	}
}

func (c *resultCache) getHistory(ctx context.Context, ticker string, days int, dest *models.PriceSeries) bool {
	return c.get(ctx, historyKey(ticker, days), dest)
}

func (c *resultCache) putHistory(ctx context.Context, ticker string, days int, s models.PriceSeries) {
	if c != nil {
		c.put(ctx, historyKey(ticker, days), s, c.historyTTL)
	}
}
