// Package testutil provides shared helpers for package tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/kapsel-run/kapsel/internal/config"
	"github.com/kapsel-run/kapsel/internal/store"
)

// Logger returns a logger that discards everything. Set KAPSEL_TEST_LOG
// to see the output while debugging a test.
func Logger() *slog.Logger {
	if os.Getenv("KAPSEL_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestConfig returns the default config pointed at throwaway resource
// names so tests never collide with a real deployment.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Sandbox.PersistentName = "kapsel-test-persistent"
	return cfg
}

// NewTestStore opens an in-memory store and closes it with the test.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
