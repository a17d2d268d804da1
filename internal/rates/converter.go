package rates

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/money"
)

// Fetcher retrieves the current rate for one ordered pair.
type Fetcher interface {
	Fetch(ctx context.Context, base, quote money.Currency) (decimal.Decimal, error)
}

// Converter converts amounts between currencies using a Cache in front of a
// Fetcher.
//
// Concurrent misses for the same pair share one fetch. The fetched rate is
// stored before any waiter returns; the last writer wins.
type Converter struct {
	cache   *Cache
	fetcher Fetcher
	metrics *metrics.Metrics
	flights singleflight.Group
}

// NewConverter creates a Converter. m may be nil.
func NewConverter(cache *Cache, fetcher Fetcher, m *metrics.Metrics) *Converter {
	return &Converter{
		cache:   cache,
		fetcher: fetcher,
		metrics: m,
	}
}

// Convert returns amount expressed in to.
// When from == to the amount is returned unchanged without touching the cache
// or the network.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to money.Currency) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// Rate returns the from→to rate, fetching it on a cache miss.
// Errors are *ConversionError.
func (c *Converter) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := c.cache.Get(from, to); ok {
		c.metrics.ObserveCacheLookup(true)
		return rate, nil
	}
	c.metrics.ObserveCacheLookup(false)

	pair := Pair{Base: from, Quote: to}
	// The shared fetch must not die with whichever caller started it; the
	// fetcher's own timeout bounds it instead.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(pair.String(), func() (any, error) {
		if rate, ok := c.cache.Get(from, to); ok {
			return rate, nil
		}
		rate, err := c.fetcher.Fetch(fetchCtx, from, to)
		if err != nil {
			return nil, err
		}
		c.cache.Put(from, to, rate, c.cache.Now())
		c.metrics.SetCacheEntries(c.cache.Len())
		slog.Debug("Exchange rate cached", "pair", pair.String(), "rate", rate.String())
		return rate, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, &ConversionError{From: from, To: to, Err: res.Err}
		}
		return res.Val.(decimal.Decimal), nil
	case <-ctx.Done():
		return decimal.Zero, &ConversionError{From: from, To: to, Err: ctx.Err()}
	}
}
