// Package testutil provides shared test helpers for setting up vaults and
// metadata engines.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/ansuz/internal/metaindex"
	"github.com/starford/ansuz/internal/vault"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestVault creates a temporary vault directory backed by a vault.FS.
func TestVault(t *testing.T) (string, *vault.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := vault.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestEngine builds an initialized metadata engine over the given files
// (path -> content), using an in-memory store.
func TestEngine(t *testing.T, files map[string]string) (*metaindex.Engine, *vault.Mem) {
	t.Helper()
	store := vault.NewMem()
	for path, content := range files {
		if err := store.Write(path, []byte(content)); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	idx := metaindex.NewEngine(store, Logger())
	if err := idx.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return idx, store
}
