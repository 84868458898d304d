package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c := Load()
	if c.Addr != ":8060" {
		t.Fatalf("Addr=%q want :8060", c.Addr)
	}
	if c.Endpoint != "vod" {
		t.Fatalf("Endpoint=%q want vod", c.Endpoint)
	}
	if c.ArchiveDir != "vod" {
		t.Fatalf("ArchiveDir=%q want vod", c.ArchiveDir)
	}
	if c.DirLevels != 0 || c.CacheSize != 100 || c.Workers != 1 {
		t.Fatalf("DirLevels=%d CacheSize=%d Workers=%d want 0/100/1", c.DirLevels, c.CacheSize, c.Workers)
	}
	if c.AllowClear {
		t.Fatal("AllowClear=true want false")
	}
	if c.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout=%s want 10s", c.ShutdownTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VOD_ORIGIN_ADDR", ":9000")
	t.Setenv("VOD_ORIGIN_ENDPOINT", "/media/")
	t.Setenv("VOD_ORIGIN_DIR_LEVELS", "2")
	t.Setenv("VOD_ORIGIN_CACHE_SIZE", "5")
	t.Setenv("VOD_ORIGIN_WORKERS", "4")
	t.Setenv("VOD_ORIGIN_PLAYREADY_ALLOW_CLEAR", "yes")
	t.Setenv("VOD_ORIGIN_PLAYREADY_KEY_SEED", "AA")

	c := Load()
	if c.Addr != ":9000" {
		t.Fatalf("Addr=%q want :9000", c.Addr)
	}
	if c.Endpoint != "media" {
		t.Fatalf("Endpoint=%q want media (trimmed)", c.Endpoint)
	}
	if c.DirLevels != 2 || c.CacheSize != 5 || c.Workers != 4 {
		t.Fatalf("DirLevels=%d CacheSize=%d Workers=%d want 2/5/4", c.DirLevels, c.CacheSize, c.Workers)
	}
	if !c.AllowClear {
		t.Fatal("AllowClear=false want true")
	}
	if c.KeySeed != "AA" {
		t.Fatalf("KeySeed=%q want AA", c.KeySeed)
	}
}

func TestLoadClampsBadValues(t *testing.T) {
	t.Setenv("VOD_ORIGIN_DIR_LEVELS", "9")
	t.Setenv("VOD_ORIGIN_CACHE_SIZE", "-1")
	t.Setenv("VOD_ORIGIN_WORKERS", "0")

	c := Load()
	if c.DirLevels != 0 {
		t.Fatalf("DirLevels=%d want 0 (out of range)", c.DirLevels)
	}
	if c.CacheSize != 100 {
		t.Fatalf("CacheSize=%d want 100", c.CacheSize)
	}
	if c.Workers != 1 {
		t.Fatalf("Workers=%d want 1", c.Workers)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nVOD_ORIGIN_TEST_KEY=hello\nVOD_ORIGIN_TEST_QUOTED=\"world\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOD_ORIGIN_TEST_KEY", "")
	t.Setenv("VOD_ORIGIN_TEST_QUOTED", "")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("VOD_ORIGIN_TEST_KEY"); got != "hello" {
		t.Fatalf("TEST_KEY=%q want hello", got)
	}
	if got := os.Getenv("VOD_ORIGIN_TEST_QUOTED"); got != "world" {
		t.Fatalf("TEST_QUOTED=%q want world", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}
