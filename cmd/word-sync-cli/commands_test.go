package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/remote"
	"github.com/smith3v/word-sync/pkg/syncer"
)

func setupRemote(t *testing.T) *remote.GormStore {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "remote.db"), "silent")
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	rs := remote.NewGormStore(gdb)
	if err := rs.MigrateSchema(context.Background()); err != nil {
		t.Fatalf("failed to migrate remote schema: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{"pull": false, "push": false, "queue": false, "learn": false, "seed": false, "export": false, "migrate": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected subcommand %q", name)
		}
	}
}

func TestSeedLearnExportRoundTrip(t *testing.T) {
	logger.SetLogLevel(logger.ERROR)
	ctx := context.Background()
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "words.csv")
	if err := os.WriteFile(csvPath, []byte("source,target,category,id\nwater,mayim,basics,w1\nbread,lechem,food,w2\n,,\n"), 0o644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}

	rs := setupRemote(t)
	var out bytes.Buffer
	if err := runSeed(ctx, &out, rs, csvPath); err != nil {
		t.Fatalf("runSeed failed: %v", err)
	}
	if !strings.Contains(out.String(), "stored 2 of 2 words") {
		t.Fatalf("unexpected seed output %q", out.String())
	}

	local := localstore.NewKVStore(localstore.NewMemoryBucket())
	if err := local.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	engine := syncer.New(local, rs)
	out.Reset()
	if err := printPull(&out, engine.PullFromRemote(ctx, "u1")); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if !strings.Contains(out.String(), "vocabulary: 2 rows") {
		t.Fatalf("unexpected pull output %q", out.String())
	}

	out.Reset()
	if err := runLearn(ctx, &out, local, "u1", "w2"); err != nil {
		t.Fatalf("runLearn failed: %v", err)
	}

	exportPath := filepath.Join(dir, "export.csv")
	out.Reset()
	if err := runExport(ctx, &out, local, "u1", exportPath); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if !strings.Contains(string(data), "bread,lechem,food") {
		t.Fatalf("unexpected export contents %q", data)
	}

	out.Reset()
	if err := printPush(&out, engine.PushLocalChanges(ctx)); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if !strings.Contains(out.String(), "1 delivered") || !strings.Contains(out.String(), "0 changes remain queued") {
		t.Fatalf("unexpected push output %q", out.String())
	}
	rows, err := rs.Select(ctx, db.TableLearnedWords, remote.Filter{"user_id": "u1"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected one remote learned word, got %d (%v)", len(rows), err)
	}
}

func TestPrintPushReportsFailures(t *testing.T) {
	var out bytes.Buffer
	report := syncer.PushReport{
		Drained:  2,
		Results:  []syncer.EntryResult{{Outcome: syncer.Delivered}, {Outcome: syncer.Lost}},
		Duration: time.Millisecond,
	}
	if err := printPush(&out, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "1 delivered, 0 failed, 0 deferred, 1 lost") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
