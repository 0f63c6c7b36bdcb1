package logwatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ShanpreetSingh/cyber-siege/pkg/blocker"
	"github.com/ShanpreetSingh/cyber-siege/pkg/clock"
)

func TestWatcherRejectsUnknownSource(t *testing.T) {
	_, err := New("tcp", "/var/log/auth.log", clock.System(), func(blocker.AuthEvent) {})
	if err == nil {
		t.Fatal("expected an error for an unknown source")
	}
}

func TestWatcherAutoPrefersReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.log")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	w, err := New("auto", path, clock.System(), func(blocker.AuthEvent) {})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if w.Source() != "file" {
		t.Errorf("got source %v, expected the readable file to win", w.Source())
	}
}
