package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/internal/testutil"
)

type recordingSaver struct {
	payloads []string
	err      error
}

func (r *recordingSaver) SaveUserWords(_ context.Context, wordPairs string) error {
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, wordPairs)
	return nil
}

func TestBuildWordPairs(t *testing.T) {
	got, err := BuildWordPairs([]db.VocabularyWord{
		{SourceText: "water", TargetText: "mayim"},
		{SourceText: "no translation"},
		{SourceText: `say "hi"`, TargetText: "tagid"},
	})
	if err != nil {
		t.Fatalf("BuildWordPairs failed: %v", err)
	}
	want := `{"mayim":"water","tagid":"say \"hi\""}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestSyncUserWordsHandsLearnedPairsToSaver(t *testing.T) {
	store := testutil.SetupLocalStore(t)
	ctx := context.Background()
	if err := store.ReplaceVocabulary(ctx, []db.VocabularyWord{
		{ID: "w1", SourceText: "water", TargetText: "mayim"},
		{ID: "w2", SourceText: "bread", TargetText: "lechem"},
	}); err != nil {
		t.Fatalf("ReplaceVocabulary failed: %v", err)
	}
	if err := store.UpsertLearnedWords(ctx, []db.LearnedWord{
		{ID: "a", UserID: "u1", WordID: "w2", LearnedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("UpsertLearnedWords failed: %v", err)
	}

	saver := &recordingSaver{}
	n, err := SyncUserWords(ctx, store, saver, "u1")
	if err != nil {
		t.Fatalf("SyncUserWords failed: %v", err)
	}
	if n != 1 || len(saver.payloads) != 1 || saver.payloads[0] != `{"lechem":"bread"}` {
		t.Fatalf("unexpected bridge payload: %d %v", n, saver.payloads)
	}

	saver.err = errors.New("bridge offline")
	if _, err := SyncUserWords(ctx, store, saver, "u1"); err == nil {
		t.Fatalf("expected saver error to be returned")
	}
	if _, err := SyncUserWords(ctx, store, nil, "u1"); !errors.Is(err, ErrNoSaver) {
		t.Fatalf("expected ErrNoSaver, got %v", err)
	}
}

func TestFileSaverReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge", "user_words.json")
	saver := NewFileSaver(path)
	ctx := context.Background()

	if err := saver.SaveUserWords(ctx, `{"mayim":"water"}`); err != nil {
		t.Fatalf("SaveUserWords failed: %v", err)
	}
	if err := saver.SaveUserWords(ctx, `{"lechem":"bread"}`); err != nil {
		t.Fatalf("second SaveUserWords failed: %v", err)
	}
	pairs, err := saver.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(pairs) != 1 || pairs["lechem"] != "bread" {
		t.Fatalf("unexpected saved pairs: %v", pairs)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}

	if err := saver.SaveUserWords(ctx, "not json"); err == nil {
		t.Fatalf("expected invalid payload to be rejected")
	}
}
