package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/internal/testutil"
	"github.com/smith3v/word-sync/pkg/localstore"
)

func setupService(t *testing.T, now *time.Time, opts ...Option) (*Service, localstore.Store) {
	t.Helper()
	store := testutil.SetupLocalStore(t)
	if err := store.ReplaceVocabulary(context.Background(), []db.VocabularyWord{
		{ID: "w1", SourceText: "water", TargetText: "mayim"},
		{ID: "w2", SourceText: "bread", TargetText: "lechem"},
		{ID: "w3", SourceText: "house", TargetText: "bayit"},
	}); err != nil {
		t.Fatalf("ReplaceVocabulary failed: %v", err)
	}
	opts = append(opts, WithClock(func() time.Time { return *now }))
	return NewService(store, opts...), store
}

func TestLearnWordWritesRowAndQueuesInsert(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	service, store := setupService(t, &now)
	ctx := context.Background()

	word, err := service.LearnWord(ctx, "u1", "w1")
	if err != nil {
		t.Fatalf("LearnWord failed: %v", err)
	}
	if word.ID == "" || word.SyncStatus != db.SyncStatusPending {
		t.Fatalf("unexpected learned word: %+v", word)
	}

	stored, err := store.GetLearnedWord(ctx, word.ID)
	if err != nil {
		t.Fatalf("GetLearnedWord failed: %v", err)
	}
	if stored.WordID != "w1" || stored.SyncStatus != db.SyncStatusPending {
		t.Fatalf("unexpected stored row: %+v", stored)
	}

	changes, err := store.DrainQueue(ctx)
	if err != nil {
		t.Fatalf("DrainQueue failed: %v", err)
	}
	if len(changes) != 1 || changes[0].Action != localstore.ActionInsert || changes[0].Table != db.TableLearnedWords {
		t.Fatalf("expected one learned_words insert, got %+v", changes)
	}
	if id, _ := changes[0].PayloadID(); id != word.ID {
		t.Fatalf("expected payload id %q, got %q", word.ID, id)
	}
}

func TestLearnWordRejectsUnknownWord(t *testing.T) {
	now := time.Now().UTC()
	service, _ := setupService(t, &now)
	if _, err := service.LearnWord(context.Background(), "u1", "missing"); !errors.Is(err, ErrWordNotFound) {
		t.Fatalf("expected ErrWordNotFound, got %v", err)
	}
}

func TestDailyLimitResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)
	service, _ := setupService(t, &now, WithDailyLimit(2))
	ctx := context.Background()

	for _, id := range []string{"w1", "w2"} {
		if _, err := service.LearnWord(ctx, "u1", id); err != nil {
			t.Fatalf("LearnWord %s failed: %v", id, err)
		}
	}
	if left, err := service.Remaining(ctx, "u1"); err != nil || left != 0 {
		t.Fatalf("expected 0 remaining, got %d (%v)", left, err)
	}
	if _, err := service.LearnWord(ctx, "u1", "w3"); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("expected ErrDailyLimitReached, got %v", err)
	}
	if left, _ := service.Remaining(ctx, "u2"); left != 2 {
		t.Fatalf("expected limit to be per user, got %d", left)
	}

	now = now.Add(3 * time.Hour)
	if _, err := service.LearnWord(ctx, "u1", "w3"); err != nil {
		t.Fatalf("expected limit to reset next day, got %v", err)
	}
}

func TestUnlimitedRemaining(t *testing.T) {
	now := time.Now().UTC()
	service, _ := setupService(t, &now)
	if left, err := service.Remaining(context.Background(), "u1"); err != nil || left != -1 {
		t.Fatalf("expected -1 for unlimited, got %d (%v)", left, err)
	}
}

func TestForgetAndRelearnRequireOwner(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	service, store := setupService(t, &now)
	ctx := context.Background()

	word, err := service.LearnWord(ctx, "u1", "w1")
	if err != nil {
		t.Fatalf("LearnWord failed: %v", err)
	}

	if err := service.ForgetWord(ctx, "u2", word.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	now = now.Add(time.Hour)
	relearned, err := service.RelearnWord(ctx, "u1", word.ID)
	if err != nil {
		t.Fatalf("RelearnWord failed: %v", err)
	}
	if !relearned.UpdatedAt.Equal(now) || !relearned.LearnedAt.Equal(word.LearnedAt) {
		t.Fatalf("expected only updated_at to move, got %+v", relearned)
	}

	if err := service.ForgetWord(ctx, "u1", word.ID); err != nil {
		t.Fatalf("ForgetWord failed: %v", err)
	}
	if _, err := store.GetLearnedWord(ctx, word.ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected row to be removed, got %v", err)
	}

	changes, err := store.DrainQueue(ctx)
	if err != nil {
		t.Fatalf("DrainQueue failed: %v", err)
	}
	var actions []localstore.Action
	for _, change := range changes {
		actions = append(actions, change.Action)
	}
	if len(actions) != 3 || actions[0] != localstore.ActionInsert || actions[1] != localstore.ActionUpdate || actions[2] != localstore.ActionDelete {
		t.Fatalf("expected insert, update, delete; got %v", actions)
	}

	if err := service.ForgetWord(ctx, "u1", word.ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for forgotten word, got %v", err)
	}
}

func TestRelearnDoesNotUseDailyQuota(t *testing.T) {
	now := time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC)
	service, _ := setupService(t, &now, WithDailyLimit(1))
	ctx := context.Background()

	old, err := service.LearnWord(ctx, "u1", "w1")
	if err != nil {
		t.Fatalf("LearnWord failed: %v", err)
	}

	now = now.Add(24 * time.Hour)
	if _, err := service.RelearnWord(ctx, "u1", old.ID); err != nil {
		t.Fatalf("RelearnWord failed: %v", err)
	}
	if left, err := service.Remaining(ctx, "u1"); err != nil || left != 1 {
		t.Fatalf("expected relearning to leave the quota at 1, got %d (%v)", left, err)
	}
	if _, err := service.LearnWord(ctx, "u1", "w2"); err != nil {
		t.Fatalf("expected a new word to still fit the quota, got %v", err)
	}
}
