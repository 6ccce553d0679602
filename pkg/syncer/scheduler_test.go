package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/smith3v/word-sync/pkg/internal/testutil"
	"github.com/smith3v/word-sync/pkg/localstore"
)

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("*/15 * * * *"); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
	if err := ValidateSchedule("every now and then"); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
	if err := ValidateSchedule("0 */15 * * * *"); err == nil {
		t.Fatalf("expected six-field schedule to be rejected")
	}
}

func TestRunOncePushesThenPulls(t *testing.T) {
	local := testutil.SetupLocalStore(t)
	fake := testutil.NewFakeRemote()
	seedRemote(fake)
	enqueue(t, local, localstore.ActionInsert, map[string]any{"id": "local-1", "user_id": "u1"})

	scheduler := NewScheduler(New(local, fake), "u1", "*/15 * * * *")
	if !scheduler.RunOnce() {
		t.Fatalf("expected RunOnce to run")
	}

	calls := fake.Calls()
	if len(calls) < 3 || calls[0].Method != "Upsert" || calls[1].Method != "Select" {
		t.Fatalf("expected push before pull, got %v", methods(calls))
	}
	vocab, err := local.ReadVocabulary(context.Background())
	if err != nil {
		t.Fatalf("ReadVocabulary failed: %v", err)
	}
	if len(vocab) != 2 {
		t.Fatalf("expected pulled vocabulary, got %d rows", len(vocab))
	}
}

func TestRunOnceSkipsOverlappingRuns(t *testing.T) {
	local := testutil.SetupLocalStore(t)
	fake := testutil.NewFakeRemote()
	enqueue(t, local, localstore.ActionInsert, map[string]any{"id": "1"})

	scheduler := NewScheduler(New(local, fake), "u1", "*/15 * * * *")
	entered := make(chan struct{})
	release := make(chan struct{})
	fake.BeforeWrite = func(testutil.Call) {
		close(entered)
		<-release
	}

	done := make(chan bool)
	go func() { done <- scheduler.RunOnce() }()
	<-entered

	if scheduler.RunOnce() {
		t.Fatalf("expected overlapping run to be skipped")
	}
	close(release)
	if !<-done {
		t.Fatalf("expected first run to complete")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	local := testutil.SetupLocalStore(t)
	scheduler := NewScheduler(New(local, testutil.NewFakeRemote()), "u1", "0 3 * * *")

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !scheduler.IsRunning() {
		t.Fatalf("expected scheduler to be running")
	}
	next := scheduler.NextRun()
	if next == nil || next.Hour() != 3 {
		t.Fatalf("expected next run at 03:00, got %v", next)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if scheduler.IsRunning() {
		t.Fatalf("expected scheduler to stop after context cancellation")
	}
	if scheduler.NextRun() != nil {
		t.Fatalf("expected no next run once stopped")
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	local := testutil.SetupMemoryStore(t)
	scheduler := NewScheduler(New(local, testutil.NewFakeRemote()), "u1", "bogus")
	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatalf("expected Start to fail for invalid schedule")
	}
}
