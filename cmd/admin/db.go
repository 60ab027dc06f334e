package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"somnarium.ai/internal/persistence/sqlite"
	"somnarium.ai/internal/sim/catalogs"
)

func dbPathFor(dataDir, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	return filepath.Join(dataDir, "somnarium.sqlite")
}

func mustOpenDB(dataDir, dbPath string) *sqlite.Store {
	path := dbPathFor(dataDir, dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

// catalogCmd compares the item catalog recorded by the server with the one
// on disk; stored slugs are only guaranteed to resolve against the former.
func catalogCmd(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/somnarium.sqlite)")
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	db := mustOpenDB(*dataDir, *dbPath)
	defer db.Close()

	recorded, err := db.CatalogDigest(context.Background(), "items_defs")
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	fmt.Printf("configs  items=%d digest=%s\n", len(cats.Items.Defs), cats.Items.DefsDigest)
	if recorded == "" {
		fmt.Println("recorded (none)")
		return
	}
	fmt.Printf("recorded digest=%s\n", recorded)
	if recorded != cats.Items.DefsDigest {
		fmt.Println("catalog changed since the server last booted")
		os.Exit(1)
	}
}
