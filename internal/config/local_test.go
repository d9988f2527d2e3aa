package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLocalConfig(t *testing.T) {
	cfg := DefaultLocalConfig()

	if cfg.Daemon.Port != 7542 {
		t.Errorf("Daemon.Port = %d, want 7542", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "127.0.0.1" {
		t.Errorf("Daemon.Bind = %q, want 127.0.0.1", cfg.Daemon.Bind)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Queue.Enabled {
		t.Error("Queue.Enabled should default to false")
	}
	if cfg.Queue.Workers != 4 {
		t.Errorf("Queue.Workers = %d, want 4", cfg.Queue.Workers)
	}
}

func TestLoadLocalConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}
	if cfg.Daemon.Port != 7542 {
		t.Errorf("Daemon.Port = %d, want default 7542", cfg.Daemon.Port)
	}
}

func TestSaveAndLoadLocalConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultLocalConfig()
	cfg.Daemon.Port = 9999
	cfg.Storage.Backend = "postgres"
	cfg.Storage.PostgresURL = "postgres://u:p@db:5432/attune"
	cfg.Queue.Enabled = true
	cfg.Coach.WebhookURL = "https://coach.example.com/hook"

	if err := SaveLocalConfig(cfg); err != nil {
		t.Fatalf("SaveLocalConfig() error = %v", err)
	}

	loaded, err := LoadLocalConfig()
	if err != nil {
		t.Fatalf("LoadLocalConfig() error = %v", err)
	}

	if loaded.Daemon.Port != 9999 {
		t.Errorf("Daemon.Port = %d, want 9999", loaded.Daemon.Port)
	}
	if loaded.Storage.Backend != "postgres" {
		t.Errorf("Storage.Backend = %q, want postgres", loaded.Storage.Backend)
	}
	if loaded.Storage.PostgresURL != cfg.Storage.PostgresURL {
		t.Errorf("Storage.PostgresURL = %q", loaded.Storage.PostgresURL)
	}
	if !loaded.Queue.Enabled {
		t.Error("Queue.Enabled should round-trip as true")
	}
	if loaded.Coach.WebhookURL != cfg.Coach.WebhookURL {
		t.Errorf("Coach.WebhookURL = %q", loaded.Coach.WebhookURL)
	}
}

func TestSQLitePathDefaultsUnderAttuneDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultLocalConfig()
	path, err := cfg.SQLitePath()
	if err != nil {
		t.Fatalf("SQLitePath() error = %v", err)
	}
	want := filepath.Join(home, ".attune", "data", "attune.db")
	if path != want {
		t.Errorf("SQLitePath() = %q, want %q", path, want)
	}

	cfg.Storage.SQLitePath = "/tmp/custom.db"
	path, err = cfg.SQLitePath()
	if err != nil {
		t.Fatalf("SQLitePath() error = %v", err)
	}
	if path != "/tmp/custom.db" {
		t.Errorf("SQLitePath() = %q, want explicit override", path)
	}
}

func TestEnsureAttuneDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := EnsureAttuneDir()
	if err != nil {
		t.Fatalf("EnsureAttuneDir() error = %v", err)
	}
	if !strings.HasSuffix(dir, ".attune") {
		t.Errorf("EnsureAttuneDir() = %q, want path ending in .attune", dir)
	}
}
