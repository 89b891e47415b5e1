package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite is a file-backed cache using modernc.org/sqlite.
type SQLite struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at path and configures WAL mode.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "cache: sqlite exec %s", pragma)
		}
	}
	return &SQLite{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS provider_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	stored_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provider_cache_expires_at ON provider_cache(expires_at);
`

// Migrate creates the cache table.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "cache: sqlite migrate")
}

func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool, error) {
	var value []byte
	var storedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM provider_cache WHERE key = ? AND expires_at > ?`,
		key, s.nowFunc().UnixNano(),
	).Scan(&value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, eris.Wrapf(err, "cache: sqlite get %s", key)
	}
	return Entry{Value: value, StoredAt: time.Unix(0, storedAt)}, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.nowFunc()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_cache (key, value, stored_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at, expires_at = excluded.expires_at`,
		key, value, now.UnixNano(), expiry(now, ttl).UnixNano(),
	)
	return eris.Wrapf(err, "cache: sqlite set %s", key)
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM provider_cache WHERE key = ? AND expires_at > ?`,
		key, s.nowFunc().UnixNano(),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "cache: sqlite has %s", key)
	}
	return n > 0, nil
}

// DeleteExpired removes expired entries and returns how many were dropped.
func (s *SQLite) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM provider_cache WHERE expires_at <= ?`, s.nowFunc().UnixNano())
	if err != nil {
		return 0, eris.Wrap(err, "cache: sqlite delete expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "cache: sqlite rows affected")
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
