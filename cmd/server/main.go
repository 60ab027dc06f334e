package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"somnarium.ai/internal/allocator"
	persistlog "somnarium.ai/internal/persistence/log"
	"somnarium.ai/internal/persistence/r2s3"
	"somnarium.ai/internal/persistence/snapshot"
	"somnarium.ai/internal/persistence/sqlite"
	"somnarium.ai/internal/persistence/store"
	"somnarium.ai/internal/sim/catalogs"
	"somnarium.ai/internal/sim/params"
	"somnarium.ai/internal/sim/tuning"
	"somnarium.ai/internal/transport/feed"
	"somnarium.ai/internal/transport/httpapi"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer a.Close()

	if cfg.SnapshotEvery > 0 {
		go a.runSnapshots(ctx, cfg.SnapshotEvery)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel2()
		// Hijacked feed connections are not tracked by Shutdown.
		a.feed.Close()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

type app struct {
	cfg serverConfig
	log *log.Logger

	tune  tuning.Tuning
	cats  *catalogs.Catalogs
	gen   *params.Generator
	store store.Store
	db    *sqlite.Store

	journal *persistlog.Journal
	mirror  *r2s3.Mirror
	alloc   *allocator.Allocator
	api     *httpapi.Server
	feed    *feed.Hub
}

func newApp(ctx context.Context, cfg serverConfig, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		logger.Printf("tuning not found (%s); using defaults", cfg.TuningPath)
		tune = tuning.Defaults()
	}
	a.tune = tune

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	a.cats = cats
	// Fails on unknown kinds or bad overrides before anything is served.
	gen, err := params.NewGenerator(&cats.Items)
	if err != nil {
		return nil, fmt.Errorf("item catalog: %w", err)
	}
	a.gen = gen

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	st, db, err := openStore(cfg.Store, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store, a.db = st, db
	if db != nil {
		if err := db.UpsertCatalog(ctx, cats.Items.Raw, &cats.Items); err != nil {
			logger.Printf("record catalog: %v", err)
		}
	} else if cfg.LoadLatest {
		if path := latestSnapshot(cfg.DataDir); path != "" {
			n, skipped, err := snapshot.Import(ctx, st, path)
			if err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("import snapshot %s: %w", filepath.Base(path), err)
			}
			logger.Printf("imported %d concoctions from %s (%d skipped)", n, filepath.Base(path), skipped)
		}
	}
	logger.Printf("store=%s items=%d digest=%s", strings.ToLower(cfg.Store), len(gen.Items().Defs), shortDigest(cats.Items.DefsDigest))

	if cfg.Mirror.Enabled() {
		client, err := r2s3.New(cfg.Mirror, nil)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("mirror: %w", err)
		}
		a.mirror = r2s3.NewMirror(client, cfg.DataDir, r2s3.MirrorOptions{Prefix: cfg.Mirror.Prefix}, logger)
		logger.Printf("mirroring snapshots and journal to %s/%s", cfg.Mirror.Endpoint, cfg.Mirror.Bucket)
	}

	a.feed = feed.NewHub(st, feed.Options{Feed: tune.Feed, LoopbackOnly: cfg.FeedLoopbackOnly}, logger)

	sinks := []httpapi.CreatedSink{a.feed}
	if !cfg.DisableJournal {
		a.journal = persistlog.NewJournal(cfg.DataDir)
		if a.mirror != nil {
			a.journal.OnFileClosed(func(path string) { a.mirror.Enqueue(path) })
		}
		sinks = append([]httpapi.CreatedSink{a.journal}, sinks...)
	}

	a.alloc = allocator.New(st, allocator.Options{MaxAttempts: tune.Allocator.MaxAttempts})
	a.api = httpapi.NewServer(a.alloc, st, httpapi.Options{
		Service: cfg.Service,
		Listing: tune.Listing,
		Sinks:   sinks,
	}, logger)
	return a, nil
}

func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	if a.cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		a.log.Printf("pprof endpoints enabled")
	}
	mux.HandleFunc("/v1/feed", a.feed.Handler())
	mux.Handle("/", a.api.Handler())
	return mux
}

func (a *app) runSnapshots(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.writeSnapshot(ctx); err != nil {
				a.log.Printf("snapshot write: %v", err)
			}
		}
	}
}

func (a *app) writeSnapshot(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	path := filepath.Join(a.cfg.DataDir, "snapshots", fmt.Sprintf("%d.snap.zst", now.UnixNano()))
	n, err := snapshot.Export(ctx, a.store, path, now)
	if err != nil {
		return "", err
	}
	a.log.Printf("snapshot %s: %d concoctions", filepath.Base(path), n)
	a.mirror.Enqueue(path)
	return path, nil
}

// Close flushes the journal and, for the memory store, writes a last
// snapshot so the next boot can resume from it. Pending mirror uploads are
// waited for last.
func (a *app) Close() {
	if a.db == nil && a.cfg.SnapshotEvery > 0 {
		if _, err := a.writeSnapshot(context.Background()); err != nil {
			a.log.Printf("final snapshot: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Printf("journal close: %v", err)
		}
	}
	a.mirror.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(dataDir string) string {
	dir := filepath.Join(dataDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestStamp uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		stamp, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || stamp > bestStamp {
			bestStamp = stamp
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
