// Command vod-origin serves adaptive-bitrate VOD from an archive of
// pre-encoded MP4 files: Smooth Streaming manifests and fragments, DASH Live,
// and Range-addressed DASH On-Demand, optionally PlayReady-encrypted.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/snapetech/vod-origin/internal/adaptive"
	"github.com/snapetech/vod-origin/internal/config"
	"github.com/snapetech/vod-origin/internal/playready"
	"github.com/snapetech/vod-origin/internal/vod"
	"github.com/snapetech/vod-origin/internal/worker"
)

func main() {
	envFile := flag.String("env", ".env", "Optional env file with VOD_ORIGIN_* settings")
	addr := flag.String("addr", "", "HTTP listen address (overrides VOD_ORIGIN_ADDR)")
	archiveDir := flag.String("archive", "", "Content archive directory (overrides VOD_ORIGIN_ARCHIVE_DIR)")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Printf("load env file: %v", err)
	}
	cfg := config.Load()
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *archiveDir != "" {
		cfg.ArchiveDir = *archiveDir
	}

	pr, err := playready.New(cfg.LicenseURL, cfg.KeySeed, cfg.AllowClear)
	if err != nil {
		log.Fatalf("playready: %v", err)
	}

	cache, err := adaptive.NewCache(cfg.CacheSize)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}

	pool := worker.NewPool(cfg.Workers)
	defer pool.Close()

	server := &vod.Server{
		Addr:       cfg.Addr,
		Endpoint:   cfg.Endpoint,
		ArchiveDir: cfg.ArchiveDir,
		DirLevels:  cfg.DirLevels,
		PlayReady:  pr,
		Pool:       pool,
		Cache:      cache,
	}
	server.WireMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Fatalf("vod: %v", err)
	}
}
