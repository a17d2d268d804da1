// Package rates fetches, caches and applies currency exchange rates.
package rates

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/money"
)

// DefaultTTL is how long a fetched rate stays usable.
const DefaultTTL = time.Hour

// Pair is an ordered (base, quote) currency pair.
// USD/EUR and EUR/USD are different pairs; rates are never inverted.
type Pair struct {
	Base  money.Currency
	Quote money.Currency
}

func (p Pair) String() string {
	return string(p.Base) + "/" + string(p.Quote)
}

// Entry is a cached rate and the time it was fetched.
type Entry struct {
	Pair      Pair
	Rate      decimal.Decimal
	FetchedAt time.Time
}

// Cache is a time-to-live cache of exchange rates keyed by ordered pair.
//
// Entries are never evicted; an entry whose age reaches the TTL reads as a
// miss and is replaced by the next Put. There is no size bound and no
// background sweep. Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Pair]Entry
	ttl     time.Duration
	now     func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source used for expiry checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[Pair]Entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the rate for (base, quote) if present and younger than the TTL.
func (c *Cache) Get(base, quote money.Currency) (decimal.Decimal, bool) {
	c.mu.RLock()
	entry, ok := c.entries[Pair{Base: base, Quote: quote}]
	c.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	if c.now().Sub(entry.FetchedAt) >= c.ttl {
		return decimal.Zero, false
	}
	return entry.Rate, true
}

// Put stores rate for (base, quote), replacing any previous entry whole.
func (c *Cache) Put(base, quote money.Currency, rate decimal.Decimal, fetchedAt time.Time) {
	pair := Pair{Base: base, Quote: quote}
	c.mu.Lock()
	c.entries[pair] = Entry{Pair: pair, Rate: rate, FetchedAt: fetchedAt}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time {
	return c.now()
}
