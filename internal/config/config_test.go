package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Polling.Messages = Duration(2 * time.Second)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if got := loaded.Polling.Messages.Std(); got != 2*time.Second {
		t.Errorf("Polling.Messages = %v, want 2s", got)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Scheduler.MaxRetries)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "default_profile = \"main\"\n\n[polling]\ninbox = \"20s\"\n\n[scheduler]\nmax_concurrent = 2\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Polling.Inbox.Std(); got != 20*time.Second {
		t.Errorf("Polling.Inbox = %v, want 20s", got)
	}
	if got := cfg.Polling.Messages.Std(); got != 3*time.Second {
		t.Errorf("Polling.Messages = %v, want default 3s", got)
	}
	if cfg.Scheduler.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.Scheduler.MaxConcurrent)
	}
	if got := cfg.Scheduler.ConnectionTimeout.Std(); got != 8*time.Second {
		t.Errorf("ConnectionTimeout = %v, want default 8s", got)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[cache]\nunread_ttl = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid duration")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
