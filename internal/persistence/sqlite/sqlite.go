// Package sqlite is the durable concoction store, backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/sim/catalogs"
)

const schemaVersion = "1"

type Store struct {
	db   *sql.DB
	once sync.Once
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: sqlite serializes writers anyway, and a shared
	// connection keeps ":memory:" databases visible to every caller.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS concoctions (
			code TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			created_unix_ns INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_concoctions_created ON concoctions(created_unix_ns);`,
		`CREATE TABLE IF NOT EXISTS concoction_items (
			code TEXT NOT NULL REFERENCES concoctions(code),
			idx INTEGER NOT NULL,
			slug TEXT NOT NULL,
			seed REAL NOT NULL,
			PRIMARY KEY (code, idx)
		);`,
		`INSERT INTO meta(key, value) VALUES('schema_version', '` + schemaVersion + `')
			ON CONFLICT(key) DO NOTHING;`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}

// Put inserts c in one transaction. The primary key is the uniqueness guard:
// a conflicting insert affects no rows and is reported as ErrDuplicateCode.
func (s *Store) Put(ctx context.Context, c concoction.Concoction) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	at := c.CreatedAt.UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO concoctions(code, created_at, created_unix_ns) VALUES(?, ?, ?)
		 ON CONFLICT(code) DO NOTHING`,
		c.Code, at.Format(time.RFC3339Nano), at.UnixNano())
	if err != nil {
		return fmt.Errorf("insert concoction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", concoction.ErrDuplicateCode, c.Code)
	}
	for i, it := range c.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO concoction_items(code, idx, slug, seed) VALUES(?, ?, ?, ?)`,
			c.Code, i, it.Slug, it.Seed); err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM concoctions WHERE code = ?`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, code string) (concoction.Concoction, error) {
	var c concoction.Concoction
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT code, created_at FROM concoctions WHERE code = ?`, code).Scan(&c.Code, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%w: %s", concoction.ErrNotFound, code)
	}
	if err != nil {
		return c, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return c, fmt.Errorf("concoction %s: bad created_at: %w", code, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT slug, seed FROM concoction_items WHERE code = ? ORDER BY idx`, code)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var it concoction.Item
		if err := rows.Scan(&it.Slug, &it.Seed); err != nil {
			return c, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// List returns up to limit records ordered newest first; equal timestamps
// fall back to insertion order, later first.
func (s *Store) List(ctx context.Context, limit int) ([]concoction.Concoction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.code, c.created_at, i.slug, i.seed
		FROM (
			SELECT rowid AS rid, code, created_at, created_unix_ns
			FROM concoctions
			ORDER BY created_unix_ns DESC, rowid DESC
			LIMIT ?
		) c
		JOIN concoction_items i ON i.code = c.code
		ORDER BY c.created_unix_ns DESC, c.rid DESC, i.idx ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []concoction.Concoction
	for rows.Next() {
		var code, createdAt string
		var it concoction.Item
		if err := rows.Scan(&code, &createdAt, &it.Slug, &it.Seed); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Code != code {
			at, err := time.Parse(time.RFC3339Nano, createdAt)
			if err != nil {
				return nil, fmt.Errorf("concoction %s: bad created_at: %w", code, err)
			}
			out = append(out, concoction.Concoction{Code: code, CreatedAt: at})
		}
		out[len(out)-1].Items = append(out[len(out)-1].Items, it)
	}
	return out, rows.Err()
}

// Count returns the number of stored concoctions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM concoctions`).Scan(&n)
	return n, err
}

// UpsertCatalog records the item catalog the server booted with, so stored
// slugs can later be audited against the definitions that were live.
func (s *Store) UpsertCatalog(ctx context.Context, raw []byte, items *catalogs.ItemCatalog) error {
	if items == nil || len(raw) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalogs(name, digest, json, updated_at) VALUES('items_defs', ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`,
		items.DefsDigest, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// CatalogDigest returns the recorded digest for name, or "" if none.
func (s *Store) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return d, err
}
