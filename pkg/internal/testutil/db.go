package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/remote"
)

// FixedNow is the clock reading stores built here stamp their changes with.
var FixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// SetupLocalStore opens an initialized sqlite-backed local store in a
// temporary directory.
func SetupLocalStore(t *testing.T, opts ...localstore.Option) *localstore.SQLStore {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "local.db"), "silent")
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	store := localstore.NewSQLStore(gdb, opts...)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize local store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return store
}

// SetupMemoryStore returns an initialized key/value local store.
func SetupMemoryStore(t *testing.T, opts ...localstore.Option) *localstore.KVStore {
	t.Helper()
	store := localstore.NewKVStore(localstore.NewMemoryBucket(), opts...)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize memory store: %v", err)
	}
	return store
}

// SetupRemoteStore opens a sqlite database with the remote schema.
func SetupRemoteStore(t *testing.T) *remote.GormStore {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "remote.db"), "silent")
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	store := remote.NewGormStore(gdb)
	if err := store.MigrateSchema(context.Background()); err != nil {
		t.Fatalf("failed to migrate remote schema: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}
	})
	return store
}
