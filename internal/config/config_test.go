package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opscal.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.EmptyShowsAll() {
		t.Error("default empty-query policy should show all")
	}
	if cfg.HighlightWindow() != 5*time.Second {
		t.Errorf("highlight window = %v", cfg.HighlightWindow())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opscal.yaml")

	cfg := Default()
	cfg.WebhookURL = "https://example.com/hook"
	cfg.EmptyQuery = "none"
	cfg.HighlightSeconds = 9
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.WebhookURL != cfg.WebhookURL {
		t.Errorf("webhook url = %q", loaded.WebhookURL)
	}
	if loaded.EmptyShowsAll() {
		t.Error("empty-query policy lost")
	}
	if loaded.HighlightWindow() != 9*time.Second {
		t.Errorf("highlight window = %v", loaded.HighlightWindow())
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opscal.yaml")
	if err := os.WriteFile(path, []byte("empty_query: sometimes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/opscal"
	if cfg.DBPath() != "/tmp/opscal/opscal.db" {
		t.Errorf("db path = %q", cfg.DBPath())
	}
	if cfg.IndexPath() != "/tmp/opscal/bleve" {
		t.Errorf("index path = %q", cfg.IndexPath())
	}
}
