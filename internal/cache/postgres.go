package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the cache uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres is a shared cache backed by a pgx connection pool.
type Postgres struct {
	pool    Pool
	nowFunc func() time.Time
}

// NewPostgres connects a pool and pings it.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "cache: postgres parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "cache: postgres create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "cache: postgres ping")
	}
	return &Postgres{pool: pool, nowFunc: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS provider_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	stored_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
`

// Migrate creates the cache table.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "cache: postgres migrate")
}

func (p *Postgres) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	err := p.pool.QueryRow(ctx,
		`SELECT value, stored_at FROM provider_cache WHERE key = $1 AND expires_at > $2`,
		key, p.nowFunc(),
	).Scan(&e.Value, &e.StoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrapf(err, "cache: postgres get %s", key)
	}
	return e, true, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := p.nowFunc()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO provider_cache (key, value, stored_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
		key, value, now, expiry(now, ttl),
	)
	return eris.Wrapf(err, "cache: postgres set %s", key)
}

func (p *Postgres) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM provider_cache WHERE key = $1 AND expires_at > $2)`,
		key, p.nowFunc(),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "cache: postgres has %s", key)
	}
	return exists, nil
}

// DeleteExpired removes expired entries and returns how many were dropped.
func (p *Postgres) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM provider_cache WHERE expires_at <= $1`, p.nowFunc())
	if err != nil {
		return 0, eris.Wrap(err, "cache: postgres delete expired")
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
