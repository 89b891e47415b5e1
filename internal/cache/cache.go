// Package cache stores provider responses so repeated lookups cost nothing.
// A miss is not an error; callers log backend errors and treat them as misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
)

// Entry is a cached value and the time it was written.
type Entry struct {
	Value    []byte
	StoredAt time.Time
}

// Age returns how long ago the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Cache is a TTL key-value store for provider responses.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Has(ctx context.Context, key string) (bool, error)
	Close() error
}

// Key builds a cache key from a provider, a stage and the lookup inputs.
// Inputs are trimmed and lower-cased so equivalent lookups share a key.
func Key(provider, stage string, parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.ToLower(strings.TrimSpace(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(norm, "\x1f")))
	return provider + ":" + stage + ":" + hex.EncodeToString(sum[:12])
}

// GetJSON decodes a cached value into T. Backend and decode errors are
// logged and reported as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, time.Time, bool) {
	var zero T
	if c == nil {
		return zero, time.Time{}, false
	}
	entry, ok, err := c.Get(ctx, key)
	if err != nil {
		zap.L().Warn("cache: get failed", zap.String("key", key), zap.Error(err))
		return zero, time.Time{}, false
	}
	if !ok {
		return zero, time.Time{}, false
	}
	var v T
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		zap.L().Warn("cache: decode failed", zap.String("key", key), zap.Error(err))
		return zero, time.Time{}, false
	}
	return v, entry.StoredAt, true
}

// SetJSON encodes v and stores it. Failures are logged, never returned.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache: encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		zap.L().Warn("cache: set failed", zap.String("key", key), zap.Error(err))
	}
}

// Open constructs the backend named by cfg.Driver. The caller owns the
// returned cache and must Close it.
func Open(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "none":
		return Nop{}, nil
	case "sqlite":
		c, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := c.Migrate(ctx); err != nil {
			c.Close() //nolint:errcheck
			return nil, err
		}
		return c, nil
	case "postgres":
		c, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := c.Migrate(ctx); err != nil {
			c.Close() //nolint:errcheck
			return nil, err
		}
		return c, nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

// DefaultTTL returns the configured TTL, falling back to one week.
func DefaultTTL(cfg config.CacheConfig) time.Duration {
	if cfg.TTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(cfg.TTLHours) * time.Hour
}

// expiry maps a non-positive TTL to a far-future expiry.
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return now.AddDate(100, 0, 0)
	}
	return now.Add(ttl)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Has(context.Context, string) (bool, error) { return false, nil }
func (Nop) Close() error { return nil }
