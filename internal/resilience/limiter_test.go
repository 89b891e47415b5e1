package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/config"
)

func TestAdaptiveLimiter_Adjusts(t *testing.T) {
	t.Parallel()
	lim := NewAdaptiveLimiter(10, 10)

	lim.OnSuccess()
	assert.InDelta(t, 12.0, float64(lim.Limit()), 0.01)
	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.01)

	for range 10 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.01)
}

func TestAdaptiveLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	lim := NewAdaptiveLimiter(0, 0)
	lim.OnRateLimit()
	assert.Equal(t, rate.Inf, lim.Limit())
	require.NoError(t, lim.Wait(context.Background()))
}

func TestAdaptiveLimiter_WaitCancelled(t *testing.T) {
	t.Parallel()
	lim := NewAdaptiveLimiter(0.001, 1)
	require.NoError(t, lim.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}

func TestConcurrencyLimiter_BoundsInFlight(t *testing.T) {
	t.Parallel()
	cl := NewConcurrencyLimiter(3)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, cl.Acquire(context.Background())) {
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			cl.Release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Zero(t, cl.InUse())
}

func TestConcurrencyLimiter_ShrinkAndGrow(t *testing.T) {
	t.Parallel()
	cl := NewConcurrencyLimiter(2)
	require.NoError(t, cl.Acquire(context.Background()))
	require.NoError(t, cl.Acquire(context.Background()))

	cl.SetCapacity(1)
	assert.Equal(t, 1, cl.Capacity())
	assert.Equal(t, 2, cl.InUse())

	// Two releases are needed before a new permit is granted.
	acquired := make(chan struct{})
	go func() {
		_ = cl.Acquire(context.Background())
		close(acquired)
	}()
	cl.Release()
	select {
	case <-acquired:
		t.Fatal("acquired while in-use equals capacity")
	case <-time.After(20 * time.Millisecond):
	}
	cl.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}

	cl.SetCapacity(0)
	assert.Equal(t, 1, cl.Capacity())
}

func TestConcurrencyLimiter_AcquireCancelled(t *testing.T) {
	t.Parallel()
	cl := NewConcurrencyLimiter(1)
	require.NoError(t, cl.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, cl.Acquire(ctx), context.DeadlineExceeded)
}

func TestLimiter_BackoffAndRecover(t *testing.T) {
	t.Parallel()
	l := NewLimiter(CategoryPaidAPI, 4, 10)

	l.Backoff()
	assert.Equal(t, 2, l.Concurrency())
	assert.InDelta(t, 5.0, float64(l.Rate()), 0.01)
	l.Backoff()
	l.Backoff()
	assert.Equal(t, 1, l.Concurrency())

	for range 10 {
		l.OnSuccess()
	}
	assert.Equal(t, 4, l.Concurrency())
}

func TestLimiter_AcquireRelease(t *testing.T) {
	t.Parallel()
	l := NewLimiter(CategoryWebsite, 1, 0)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release()
	assert.Zero(t, l.conc.InUse())
}

func TestLimiters_For(t *testing.T) {
	t.Parallel()
	ls := NewLimiters(config.ConcurrencyConfig{Website: 10, PaidAPI: 3, Registry: 2, PaidAPIRPS: 5})
	assert.Equal(t, 10, ls.For(CategoryWebsite).Concurrency())
	assert.Equal(t, 2, ls.For(CategoryRegistry).Concurrency())
	assert.Same(t, ls.For(CategoryPaidAPI), ls.For(Category("other")))
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	retry, breaker := FromConfig(config.ResilienceConfig{
		MaxAttempts:      4,
		InitialBackoffMs: 100,
		MaxBackoffMs:     2000,
		Multiplier:       3,
		JitterFraction:   0.1,
		FailureThreshold: 7,
		ResetTimeoutSecs: 60,
	})
	assert.Equal(t, 4, retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, retry.InitialBackoff)
	assert.Equal(t, 2*time.Second, retry.MaxBackoff)
	assert.InDelta(t, 3.0, retry.Multiplier, 1e-9)
	assert.Equal(t, 7, breaker.FailureThreshold)
	assert.Equal(t, time.Minute, breaker.ResetTimeout)

	retry, breaker = FromConfig(config.ResilienceConfig{})
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, retry.MaxAttempts)
	assert.Equal(t, DefaultCircuitBreakerConfig().ResetTimeout, breaker.ResetTimeout)
}
