package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"somnarium.ai/internal/persistence/sqlite"
	"somnarium.ai/internal/persistence/store"
)

// openStore returns the configured backend. db is non-nil only for sqlite.
func openStore(backend, dbPath string) (s store.Store, db *sqlite.Store, err error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, nil, err
		}
		db, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case "memory", "mem":
		return store.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}
