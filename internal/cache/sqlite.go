package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harrylevesque/hivebff/internal/cache/migrations"
	"github.com/harrylevesque/hivebff/internal/crypto"
)

// SQLiteStore persists entries in a SQLite file so a restart keeps warm lists.
// When a seal key is set, bodies are encrypted at rest with the entry key as
// associated data.
type SQLiteStore struct {
	db      *sql.DB
	sealKey []byte
}

// OpenSQLite opens (creating if needed) the cache database at path and
// applies the embedded migrations. sealKey may be nil.
func OpenSQLite(path string, sealKey []byte) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is required")
	}
	if sealKey != nil && len(sealKey) != 32 {
		return nil, crypto.ErrInvalidKeyLength
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db, sealKey: sealKey}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var body []byte
	var storedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT body, stored_at FROM cache_entries WHERE key = ?`, key).Scan(&body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	if s.sealKey != nil {
		body, err = crypto.DecryptAESGCM(s.sealKey, body, []byte(key))
		if err != nil {
			return Entry{}, false, fmt.Errorf("open cache entry %s: %w", key, err)
		}
	}
	return Entry{Key: key, Body: body, StoredAt: time.UnixMilli(storedAt).UTC()}, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	body := e.Body
	if s.sealKey != nil {
		sealed, err := crypto.EncryptAESGCM(s.sealKey, body, []byte(e.Key))
		if err != nil {
			return fmt.Errorf("seal cache entry: %w", err)
		}
		body = sealed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, body, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, stored_at = excluded.stored_at`,
		e.Key, body, e.StoredAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE instr(key, ?) = 1`, prefix); err != nil {
		return fmt.Errorf("delete cache prefix: %w", err)
	}
	return nil
}

// Prune deletes entries stored before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE stored_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyMigrations runs each embedded .sql file once, in name order.
func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}
