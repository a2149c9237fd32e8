// Package sqlitestore keeps tiles in a single SQLite file.
package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/mohammed-shakir/vtile-cache/internal/cache"
	"github.com/mohammed-shakir/vtile-cache/internal/core/observability"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals
var gooseMu sync.Mutex

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite cache: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	s := &Store{db: db, log: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("sqlite cache initialized", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("sqlite migrations: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, cache.ErrInvalidKey
	}
	start := time.Now()
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tiles WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		observability.ObserveCacheOp("sqlite", "exists", nil, time.Since(start).Seconds())
		return false, nil
	}
	observability.ObserveCacheOp("sqlite", "exists", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("sqlite exists %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) Read(ctx context.Context, key string, fn func(io.Reader) error) (bool, error) {
	if key == "" {
		return false, cache.ErrInvalidKey
	}
	start := time.Now()
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM tiles WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		observability.ObserveCacheOp("sqlite", "read", nil, time.Since(start).Seconds())
		return false, nil
	}
	observability.ObserveCacheOp("sqlite", "read", err, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("sqlite read %q: %w", key, err)
	}
	if err := fn(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("read %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return cache.ErrInvalidKey
	}
	if data == nil {
		data = []byte{}
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `INSERT INTO tiles (key, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().Unix())
	observability.ObserveCacheOp("sqlite", "write", err, time.Since(start).Seconds())
	if err != nil {
		s.log.Error("sqlite cache write failed", "key", key, "err", err)
		return fmt.Errorf("sqlite write %q: %w", key, err)
	}
	return nil
}

// deleteBatch stays under SQLite's bound-variable limit.
const deleteBatch = 500

// Delete removes keys in batches inside one transaction, so a large bbox
// invalidation either lands completely or not at all.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := s.deleteTx(ctx, keys)
	observability.ObserveCacheOp("sqlite", "delete", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("sqlite delete %d keys: %w", len(keys), err)
	}
	return nil
}

func (s *Store) deleteTx(ctx context.Context, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	args := make([]any, 0, deleteBatch)
	for len(keys) > 0 {
		n := min(len(keys), deleteBatch)
		args = args[:0]
		for _, k := range keys[:n] {
			args = append(args, k)
		}
		q := `DELETE FROM tiles WHERE key IN (?` + strings.Repeat(",?", n-1) + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return tx.Commit()
}

// Purge deletes every key starting with prefix. The range predicate keeps
// LIKE wildcards in tileset names from matching anything else.
func (s *Store) Purge(ctx context.Context, prefix string) error {
	if prefix == "" {
		return cache.ErrInvalidKey
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tiles WHERE key >= ? AND key < ?`, prefix, prefixEnd(prefix))
	observability.ObserveCacheOp("sqlite", "purge", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("sqlite purge %q: %w", prefix, err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite close: %w", err)
	}
	return nil
}

// smallest string greater than every string with the given prefix
func prefixEnd(p string) string {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return string(b) + "\xff"
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Deleter = (*Store)(nil)
	_ cache.Purger  = (*Store)(nil)
)
