package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"somnarium.ai/internal/persistence/r2s3"
)

// serverConfig is read from SOMN_* variables first; flags override it.
type serverConfig struct {
	Addr       string `env:"SOMN_ADDR" envDefault:":3000"`
	Service    string `env:"SOMN_SERVICE" envDefault:"somnarium"`
	ConfigDir  string `env:"SOMN_CONFIGS" envDefault:"./configs"`
	DataDir    string `env:"SOMN_DATA" envDefault:"./data"`
	TuningPath string `env:"SOMN_TUNING"`

	Store  string `env:"SOMN_STORE" envDefault:"sqlite"`
	DBPath string `env:"SOMN_DB"`

	DisableJournal   bool          `env:"SOMN_DISABLE_JOURNAL"`
	SnapshotEvery    time.Duration `env:"SOMN_SNAPSHOT_EVERY" envDefault:"10m"`
	LoadLatest       bool          `env:"SOMN_LOAD_LATEST_SNAPSHOT" envDefault:"true"`
	FeedLoopbackOnly bool          `env:"SOMN_FEED_LOOPBACK_ONLY"`
	EnablePprof      bool          `env:"SOMN_ENABLE_PPROF_HTTP"`
	ShutdownTimeout  time.Duration `env:"SOMN_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Snapshots and closed journal files are copied here when configured.
	Mirror r2s3.Config `envPrefix:"SOMN_MIRROR_"`
}

func loadConfig(args []string) (serverConfig, error) {
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.Service, "service", cfg.Service, "service name reported by /health")
	fs.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "store backend: sqlite|memory")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite path (default: <data>/somnarium.sqlite)")
	fs.BoolVar(&cfg.DisableJournal, "disable_journal", cfg.DisableJournal, "do not write the creation journal")
	fs.DurationVar(&cfg.SnapshotEvery, "snapshot_every", cfg.SnapshotEvery, "snapshot interval (0 disables)")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", cfg.LoadLatest, "memory store: import the latest snapshot on boot")
	fs.BoolVar(&cfg.FeedLoopbackOnly, "feed_loopback_only", cfg.FeedLoopbackOnly, "only accept feed subscribers from loopback")
	fs.BoolVar(&cfg.EnablePprof, "pprof", cfg.EnablePprof, "expose /debug/pprof")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown_timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&cfg.Mirror.Endpoint, "mirror_endpoint", cfg.Mirror.Endpoint, "S3-compatible endpoint for off-host copies (empty disables)")
	fs.StringVar(&cfg.Mirror.Bucket, "mirror_bucket", cfg.Mirror.Bucket, "mirror bucket")
	fs.StringVar(&cfg.Mirror.Prefix, "mirror_prefix", cfg.Mirror.Prefix, "object key prefix")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(cfg.TuningPath) == "" {
		cfg.TuningPath = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "somnarium.sqlite")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return cfg, nil
}
