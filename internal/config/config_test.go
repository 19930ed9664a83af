package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/waveframe/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Queue.MaxConcurrentJobs != 1 {
		t.Errorf("max_concurrent_jobs = %d, want default 1", cfg.Queue.MaxConcurrentJobs)
	}
	if cfg.Queue.MaxPendingJobs != 50 {
		t.Errorf("max_pending_jobs = %d, want default 50", cfg.Queue.MaxPendingJobs)
	}
	if cfg.Queue.CompletedCapacity != 20 {
		t.Errorf("completed_capacity = %d, want default 20", cfg.Queue.CompletedCapacity)
	}
	if cfg.Output.Quality != "medium" {
		t.Errorf("quality = %s, want default medium", cfg.Output.Quality)
	}
	if !cfg.Output.PreserveMetadata {
		t.Error("preserve_metadata should default to true")
	}
}

func TestLoadFallsBackOnUnknownQuality(t *testing.T) {
	cfg, err := Load(writeConfig(t, "output:\n  quality: ultra\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output.Quality != "medium" {
		t.Errorf("quality = %s, want medium fallback", cfg.Output.Quality)
	}
}

func TestLoadRejectsConcurrencyOutOfRange(t *testing.T) {
	_, err := Load(writeConfig(t, "queue:\n  max_concurrent_jobs: 9\n"))
	if err == nil {
		t.Fatal("expected error for max_concurrent_jobs > 5")
	}
}

func TestValidateAcceptsBounds(t *testing.T) {
	cfg := &Config{
		Output: OutputConfig{Quality: "high"},
		Queue:  QueueConfig{MaxConcurrentJobs: 5, MaxPendingJobs: 10, CompletedCapacity: 5},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
