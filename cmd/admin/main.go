package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/persistence/snapshot"
	"somnarium.ai/internal/reconstruct"
	"somnarium.ai/internal/sim/catalogs"
	"somnarium.ai/internal/sim/params"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "list":
			listCmd(os.Args[2:])
			return
		case "get":
			getCmd(os.Args[2:])
			return
		case "reconstruct":
			reconstructCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "catalog":
			catalogCmd(os.Args[2:])
			return
		case "ping":
			pingCmd(os.Args[2:])
			return
		case "fetch":
			fetchCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/somnarium.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	db := mustOpenDB(*dataDir, *dbPath)
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	list, err := db.List(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	now := time.Now()
	for _, c := range list {
		fmt.Printf("%s  %-16s  %s\n", c.Code, humanize.RelTime(c.CreatedAt, now, "ago", "from now"), strings.Join(c.Slugs(), ", "))
	}
	if n, err := db.Count(context.Background()); err == nil {
		fmt.Printf("%s of %s concoctions\n", humanize.Comma(int64(len(list))), humanize.Comma(int64(n)))
	}
}

func getCmd(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/somnarium.sqlite)")
	_ = fs.Parse(args)
	code := requireCode(fs)

	db := mustOpenDB(*dataDir, *dbPath)
	defer db.Close()

	c, err := db.Get(context.Background(), code)
	if err != nil {
		exitLookup(code, err)
	}
	printJSON(c)
}

func reconstructCmd(args []string) {
	fs := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/somnarium.sqlite)")
	configDir := fs.String("configs", "./configs", "config directory")
	_ = fs.Parse(args)
	code := requireCode(fs)

	gen := mustGenerator(*configDir)
	db := mustOpenDB(*dataDir, *dbPath)
	defer db.Close()

	r, err := reconstruct.New(db, gen, nil).Reconstruct(context.Background(), code)
	if err != nil {
		exitLookup(code, err)
	}
	printJSON(r)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(os.Stderr, "%d item(s) skipped\n", len(r.Skipped))
	}
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/somnarium.sqlite)")
	outPath := fs.String("out", "", "output snapshot path (default: <data>/snapshots/<unix_nanos>.snap.zst)")
	_ = fs.Parse(args)

	db := mustOpenDB(*dataDir, *dbPath)
	defer db.Close()

	now := time.Now().UTC()
	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(*dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", now.UnixNano()))
	}
	n, err := snapshot.Export(context.Background(), db, *outPath, now)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	size := ""
	if st, err := os.Stat(*outPath); err == nil {
		size = humanize.Bytes(uint64(st.Size()))
	}
	fmt.Printf("export ok: concoctions=%d size=%s out=%s\n", n, size, *outPath)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/somnarium.sqlite)")
	snapPath := fs.String("snapshot", "", "snapshot to import (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*snapPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	db := mustOpenDB(*dataDir, *dbPath)
	defer db.Close()

	imported, skipped, err := snapshot.Import(context.Background(), db, *snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	fmt.Printf("import ok: snapshot=%s imported=%d skipped=%d\n", filepath.Base(*snapPath), imported, skipped)
}

func requireCode(fs *flag.FlagSet) string {
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: admin %s [flags] <code>\n", fs.Name())
		os.Exit(2)
	}
	code, err := concoction.ValidateCode(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad code:", err)
		os.Exit(2)
	}
	return code
}

func exitLookup(code string, err error) {
	if errors.Is(err, concoction.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "%s: not found\n", code)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "lookup:", err)
	os.Exit(1)
}

func mustGenerator(configDir string) *params.Generator {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	gen, err := params.NewGenerator(&cats.Items)
	if err != nil {
		fmt.Fprintln(os.Stderr, "item catalog:", err)
		os.Exit(1)
	}
	return gen
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
