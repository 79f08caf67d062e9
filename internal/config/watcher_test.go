package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, listenAddr string) {
	t.Helper()
	doc := "server:\n  listen_addr: \"" + listenAddr + "\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, ":7070")

	w, err := NewWatcher(path, nil, WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":7070" {
		t.Errorf("ListenAddr = %q, want :7070", got)
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, ":7070")

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		changed <- new
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate the mtime so the rewrite below is guaranteed to change it.
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, path, ":9090")

	select {
	case cfg := <-changed:
		if cfg.Server.ListenAddr != ":9090" {
			t.Errorf("reloaded ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if got := w.Current().Server.ListenAddr; got != ":9090" {
		t.Errorf("Current().ListenAddr = %q, want :9090", got)
	}
}

func TestWatcherKeepsOldConfigOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, ":7070")

	w, err := NewWatcher(path, func(old, new *Config) {
		t.Error("onChange must not fire for an invalid config")
	}, WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)

	if got := w.Current().Server.ListenAddr; got != ":7070" {
		t.Errorf("Current().ListenAddr = %q, want previous :7070", got)
	}
}
