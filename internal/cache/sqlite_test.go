package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	c, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func TestSQLite_SetGet(t *testing.T) {
	t.Parallel()
	c := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "hunter:k", []byte(`{"emails":[]}`), time.Hour))
	e, ok, err := c.Get(ctx, "hunter:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"emails":[]}`, string(e.Value))
	assert.WithinDuration(t, time.Now(), e.StoredAt, time.Minute)

	has, err := c.Has(ctx, "hunter:k")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSQLite_Miss(t *testing.T) {
	t.Parallel()
	c := newTestSQLite(t)
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_Overwrite(t *testing.T) {
	t.Parallel()
	c := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("one"), time.Hour))
	require.NoError(t, c.Set(ctx, "k", []byte("two"), time.Hour))
	e, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(e.Value))
}

func TestSQLite_ExpiryAndDelete(t *testing.T) {
	t.Parallel()
	c := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("y"), 24*time.Hour))

	now = now.Add(time.Hour)
	has, err := c.Has(ctx, "short")
	require.NoError(t, err)
	assert.False(t, has)

	n, err := c.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	has, err = c.Has(ctx, "long")
	require.NoError(t, err)
	assert.True(t, has)
}
