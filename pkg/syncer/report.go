package syncer

import (
	"errors"
	"time"

	"github.com/smith3v/word-sync/pkg/localstore"
)

// Outcome is what happened to one drained change during a push pass.
type Outcome string

const (
	// Delivered: the remote call succeeded.
	Delivered Outcome = "delivered"
	// Failed: the remote call failed and the change was re-enqueued.
	Failed Outcome = "failed"
	// Deferred: an earlier change to the same record failed in this pass, so
	// this one was re-enqueued behind it without being sent.
	Deferred Outcome = "deferred"
	// Lost: the change was dropped and will never be sent.
	Lost Outcome = "lost"
	// Skipped: no remote table handles the change.
	Skipped Outcome = "skipped"
)

type EntryResult struct {
	Change  localstore.Change
	Outcome Outcome
	Err     error
}

type PushReport struct {
	Drained   int
	Results   []EntryResult
	Remaining int64
	DrainErr  error
	Duration  time.Duration
}

// Count returns how many entries ended with outcome.
func (r PushReport) Count(outcome Outcome) int {
	n := 0
	for _, result := range r.Results {
		if result.Outcome == outcome {
			n++
		}
	}
	return n
}

// Err joins every error seen during the pass.
func (r PushReport) Err() error {
	errs := []error{r.DrainErr}
	for _, result := range r.Results {
		errs = append(errs, result.Err)
	}
	return errors.Join(errs...)
}

type PullReport struct {
	UserID string
	// Vocabulary is the number of rows written by the vocabulary step.
	Vocabulary int
	// LearnedWords is the number of remote learned words fetched.
	LearnedWords int
	// Enqueued counts rows routed through the change queue (queue mode).
	Enqueued int
	// Written counts rows written directly as confirmed (direct mode).
	Written int
	// KeptPending counts fetched rows left alone because the local copy has
	// unsent changes.
	KeptPending int
	// Purged counts confirmed local rows removed because the remote no
	// longer has them (direct mode).
	Purged int

	InitErr       error
	VocabularyErr error
	LearnedErr    error
	Duration      time.Duration
}

func (r PullReport) Err() error {
	return errors.Join(r.InitErr, r.VocabularyErr, r.LearnedErr)
}
