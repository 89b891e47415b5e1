package resilience

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/config"
)

// Category groups providers that share a concurrency and rate budget.
type Category string

const (
	CategoryWebsite  Category = "website"
	CategoryPaidAPI  Category = "paid_api"
	CategoryRegistry Category = "registry"
)

// AdaptiveLimiter wraps a rate.Limiter that speeds up 20% per success (up
// to 2x initial) and halves on rate-limit (down to initial/4).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter. A non-positive rate means
// no rate limit.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	if initialRate <= 0 {
		initialRate = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate == rate.Inf {
		return
	}
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate, down to initial/4.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate == rate.Inf {
		return
	}
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// ConcurrencyLimiter is a counting semaphore whose capacity can shrink and
// grow while permits are held. Shrinking never revokes held permits; new
// acquires wait until in-use drops below the new capacity.
type ConcurrencyLimiter struct {
	mu       sync.Mutex
	capacity int
	initial  int
	inUse    int
	wake     chan struct{}
}

// NewConcurrencyLimiter creates a limiter with capacity n (min 1).
func NewConcurrencyLimiter(n int) *ConcurrencyLimiter {
	n = max(n, 1)
	return &ConcurrencyLimiter{capacity: n, initial: n, wake: make(chan struct{})}
}

// Acquire blocks until a permit is free or ctx is done.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.inUse < c.capacity {
			c.inUse++
			c.mu.Unlock()
			return nil
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Release returns a permit.
func (c *ConcurrencyLimiter) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse > 0 {
		c.inUse--
	}
	c.broadcast()
}

// SetCapacity resizes the limiter (min 1).
func (c *ConcurrencyLimiter) SetCapacity(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = max(n, 1)
	c.broadcast()
}

// Capacity returns the current capacity.
func (c *ConcurrencyLimiter) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// InUse returns the number of held permits.
func (c *ConcurrencyLimiter) InUse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// broadcast wakes every waiter. Caller holds mu.
func (c *ConcurrencyLimiter) broadcast() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// Limiter combines the concurrency and rate limit of one category.
type Limiter struct {
	category Category
	conc     *ConcurrencyLimiter
	rate     *AdaptiveLimiter
}

// NewLimiter creates a category limiter.
func NewLimiter(category Category, concurrency int, rps float64) *Limiter {
	burst := max(concurrency, 1)
	return &Limiter{
		category: category,
		conc:     NewConcurrencyLimiter(concurrency),
		rate:     NewAdaptiveLimiter(rate.Limit(rps), burst),
	}
}

// Acquire takes a concurrency permit and then waits for the rate limiter.
// The returned release func must be called once the call finishes.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.conc.Acquire(ctx); err != nil {
		return nil, err
	}
	if err := l.rate.Wait(ctx); err != nil {
		l.conc.Release()
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(l.conc.Release) }, nil
}

// Backoff halves concurrency (min 1) and rate after a rate-limit response.
// The reduction holds for the rest of the session until successes recover it.
func (l *Limiter) Backoff() {
	l.conc.SetCapacity(l.conc.Capacity() / 2)
	l.rate.OnRateLimit()
	zap.L().Warn("resilience: backing off category",
		zap.String("category", string(l.category)),
		zap.Int("concurrency", l.conc.Capacity()),
		zap.Float64("rate", float64(l.rate.Limit())),
	)
}

// OnSuccess recovers one concurrency slot (up to the configured value) and
// nudges the rate up.
func (l *Limiter) OnSuccess() {
	l.conc.mu.Lock()
	if l.conc.capacity < l.conc.initial {
		l.conc.capacity++
		l.conc.broadcast()
	}
	l.conc.mu.Unlock()
	l.rate.OnSuccess()
}

// Concurrency returns the current concurrency limit.
func (l *Limiter) Concurrency() int {
	return l.conc.Capacity()
}

// Rate returns the current rate limit.
func (l *Limiter) Rate() rate.Limit {
	return l.rate.Limit()
}

// Limiters holds one Limiter per category.
type Limiters struct {
	byCategory map[Category]*Limiter
}

// NewLimiters builds category limiters from the concurrency section.
func NewLimiters(cfg config.ConcurrencyConfig) *Limiters {
	return &Limiters{byCategory: map[Category]*Limiter{
		CategoryWebsite:  NewLimiter(CategoryWebsite, cfg.Website, cfg.WebsiteRPS),
		CategoryPaidAPI:  NewLimiter(CategoryPaidAPI, cfg.PaidAPI, cfg.PaidAPIRPS),
		CategoryRegistry: NewLimiter(CategoryRegistry, cfg.Registry, cfg.RegistryRPS),
	}}
}

// For returns the limiter for a category. Unknown categories share the
// paid_api limiter.
func (ls *Limiters) For(c Category) *Limiter {
	if l, ok := ls.byCategory[c]; ok {
		return l
	}
	return ls.byCategory[CategoryPaidAPI]
}
