// Package config loads the origin's settings from the environment. Call
// LoadEnvFile(".env") before Load() to use a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the VOD origin settings.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8060".
	Addr string
	// Endpoint is the URL prefix the adaptive surface is mounted under.
	Endpoint string
	// ArchiveDir is the root of the content archive; each content id is a
	// directory holding the descriptor and its MP4 files.
	ArchiveDir string
	// DirLevels shards content ids into {d}/{d}/{d}/content_id
	// subdirectories by their first characters. 0..3.
	DirLevels int
	// CacheSize bounds the presentation LRU.
	CacheSize int
	// Workers is the size of the fragment-assembly pool.
	Workers int

	// ShutdownTimeout is loaded but not passed to the server; vod.Server.Run
	// waits a fixed 10 s for in-flight requests on shutdown.
	ShutdownTimeout time.Duration

	// PlayReady settings.
	LicenseURL string
	// KeySeed is 60 hex characters (30 bytes). The built-in default is the
	// public demo seed and must be replaced in production.
	KeySeed string
	// AllowClear permits /clear/ URLs alongside encrypted streaming.
	AllowClear bool
}

// Load reads the configuration from VOD_ORIGIN_* environment variables.
func Load() *Config {
	c := &Config{
		Addr:            getEnv("VOD_ORIGIN_ADDR", ":8060"),
		Endpoint:        getEnv("VOD_ORIGIN_ENDPOINT", "vod"),
		ArchiveDir:      getEnv("VOD_ORIGIN_ARCHIVE_DIR", "vod"),
		DirLevels:       getEnvInt("VOD_ORIGIN_DIR_LEVELS", 0),
		CacheSize:       getEnvInt("VOD_ORIGIN_CACHE_SIZE", 100),
		Workers:         getEnvInt("VOD_ORIGIN_WORKERS", 1),
		ShutdownTimeout: getEnvDuration("VOD_ORIGIN_SHUTDOWN_TIMEOUT", 10*time.Second),
		LicenseURL:      os.Getenv("VOD_ORIGIN_PLAYREADY_LICENSE_URL"),
		KeySeed:         os.Getenv("VOD_ORIGIN_PLAYREADY_KEY_SEED"),
		AllowClear:      getEnvBool("VOD_ORIGIN_PLAYREADY_ALLOW_CLEAR", false),
	}
	if c.DirLevels < 0 || c.DirLevels > 3 {
		c.DirLevels = 0
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	c.Endpoint = strings.Trim(c.Endpoint, "/")
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
