// Package syncer reconciles the local store with the remote store of record.
//
// A pull refreshes vocabulary and the user's learned words from the remote.
// A push drains the local change queue and replays it against the remote in
// FIFO order. Neither pass returns an error; each reports what happened to
// every step or entry so callers can log or display it.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/metrics"
	"github.com/smith3v/word-sync/pkg/remote"
)

// PullMode decides where pulled learned words go.
type PullMode string

const (
	// PullModeDirect writes pulled rows to the local table, already confirmed.
	PullModeDirect PullMode = "direct"
	// PullModeQueue enqueues each pulled row as an insert, so the next push
	// sends it back to the remote.
	PullModeQueue PullMode = "queue"
)

var (
	ErrUnknownPullMode = errors.New("unknown pull mode")
	ErrUndecodable     = errors.New("change payload could not be decoded")
	ErrNoRecordID      = errors.New("change payload has no id")
)

func ParsePullMode(value string) (PullMode, error) {
	switch mode := PullMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case PullModeDirect, PullModeQueue:
		return mode, nil
	case "":
		return PullModeDirect, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPullMode, value)
	}
}

// localOnlyColumns never leave the device.
var localOnlyColumns = []string{"sync_status"}

type Engine struct {
	local  localstore.Store
	remote remote.Store

	pullMode      PullMode
	maxRetries    int
	remoteTimeout time.Duration
	metrics       *metrics.Metrics

	// One pull and one push may be in flight at a time. A pull may overlap
	// a push.
	pullMu sync.Mutex
	pushMu sync.Mutex
}

type Option func(*Engine)

func WithPullMode(mode PullMode) Option {
	return func(e *Engine) {
		e.pullMode = mode
	}
}

// WithMaxRetries sets how many times a failed change is re-enqueued before
// it is dropped. Zero means a failed change is lost.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.maxRetries = n
	}
}

// WithRemoteTimeout bounds each remote call. Zero leaves calls unbounded.
func WithRemoteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.remoteTimeout = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(local localstore.Store, rs remote.Store, opts ...Option) *Engine {
	e := &Engine{
		local:    local,
		remote:   rs,
		pullMode: PullModeDirect,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Local() localstore.Store {
	return e.local
}

func (e *Engine) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.remoteTimeout > 0 {
		return context.WithTimeout(ctx, e.remoteTimeout)
	}
	return context.WithCancel(ctx)
}

// PullFromRemote refreshes the local vocabulary and the user's learned words.
// The two steps are independent: a failed vocabulary fetch does not stop the
// learned-words fetch.
func (e *Engine) PullFromRemote(ctx context.Context, userID string) PullReport {
	e.pullMu.Lock()
	defer e.pullMu.Unlock()

	start := time.Now()
	report := PullReport{UserID: userID}
	defer func() {
		report.Duration = time.Since(start)
		e.metrics.ObservePass("pull", report.Duration.Seconds())
	}()

	if err := e.local.Initialize(ctx); err != nil {
		report.InitErr = err
		logger.Error("pull aborted: local store unavailable", "error", err)
		return report
	}

	report.Vocabulary, report.VocabularyErr = e.pullVocabulary(ctx)
	e.metrics.RecordPullStep(db.TableVocabularyWords, report.VocabularyErr)
	if report.VocabularyErr != nil {
		logger.Error("vocabulary pull failed", "error", report.VocabularyErr)
	}

	if strings.TrimSpace(userID) == "" {
		logger.Debug("no user for learned words pull")
	} else {
		report.LearnedErr = e.pullLearnedWords(ctx, userID, &report)
		e.metrics.RecordPullStep(db.TableLearnedWords, report.LearnedErr)
		if report.LearnedErr != nil {
			logger.Error("learned words pull failed", "user_id", userID, "error", report.LearnedErr)
		}
	}

	logger.Info("pull finished",
		"user_id", userID,
		"vocabulary", report.Vocabulary,
		"learned_words", report.LearnedWords,
		"enqueued", report.Enqueued,
		"written", report.Written,
		"purged", report.Purged,
	)
	return report
}

func (e *Engine) pullVocabulary(ctx context.Context) (int, error) {
	rctx, cancel := e.remoteContext(ctx)
	rows, err := e.remote.Select(rctx, db.TableVocabularyWords, nil)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("fetch vocabulary: %w", err)
	}

	words := make([]db.VocabularyWord, 0, len(rows))
	for _, row := range rows {
		var word db.VocabularyWord
		if err := row.Decode(&word); err != nil {
			logger.Warn("skipping undecodable vocabulary row", "id", row["id"], "error", err)
			continue
		}
		words = append(words, word)
	}
	if err := e.local.ReplaceVocabulary(ctx, words); err != nil {
		return 0, fmt.Errorf("store vocabulary: %w", err)
	}
	return len(words), nil
}

func (e *Engine) pullLearnedWords(ctx context.Context, userID string, report *PullReport) error {
	// Rows confirmed before the fetch are the only purge candidates. A row
	// confirmed later may have reached the remote after the select ran.
	var confirmed []string
	if e.pullMode == PullModeDirect {
		local, err := e.local.ListLearnedWords(ctx, userID)
		if err != nil {
			return fmt.Errorf("list local learned words: %w", err)
		}
		for _, word := range local {
			if word.Confirmed() {
				confirmed = append(confirmed, word.ID)
			}
		}
	}

	rctx, cancel := e.remoteContext(ctx)
	rows, err := e.remote.Select(rctx, db.TableLearnedWords, remote.Filter{"user_id": userID})
	cancel()
	if err != nil {
		return fmt.Errorf("fetch learned words: %w", err)
	}
	report.LearnedWords = len(rows)

	if e.pullMode == PullModeQueue {
		var errs []error
		for _, row := range rows {
			if _, err := e.local.EnqueueChange(ctx, db.TableLearnedWords, localstore.ActionInsert, map[string]any(row)); err != nil {
				errs = append(errs, err)
				continue
			}
			report.Enqueued++
		}
		return errors.Join(errs...)
	}

	pending, err := e.pendingLearned(ctx, userID)
	if err != nil {
		return err
	}
	fetched := make(map[string]bool, len(rows))
	words := make([]db.LearnedWord, 0, len(rows))
	for _, row := range rows {
		if id, ok := row.ID(); ok {
			fetched[id] = true
		}
		var word db.LearnedWord
		if err := row.Decode(&word); err != nil {
			logger.Warn("skipping undecodable learned word", "id", row["id"], "error", err)
			continue
		}
		if pending[word.ID] {
			report.KeptPending++
			continue
		}
		word.SyncStatus = db.SyncStatusConfirmed
		words = append(words, word)
	}
	if err := e.local.UpsertLearnedWords(ctx, words); err != nil {
		return fmt.Errorf("store learned words: %w", err)
	}
	report.Written = len(words)

	var stale []string
	for _, id := range confirmed {
		if !fetched[id] && !pending[id] {
			stale = append(stale, id)
		}
	}
	if err := e.local.DeleteLearnedWords(ctx, stale); err != nil {
		return fmt.Errorf("purge learned words: %w", err)
	}
	report.Purged = len(stale)
	return nil
}

// pendingLearned returns the ids whose local state the remote must not
// overwrite: unconfirmed rows and records with a queued change, including
// deletes whose row is already gone.
func (e *Engine) pendingLearned(ctx context.Context, userID string) (map[string]bool, error) {
	local, err := e.local.ListLearnedWords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list local learned words: %w", err)
	}
	pending, err := e.local.QueuedRecordIDs(ctx, db.TableLearnedWords)
	if err != nil {
		return nil, fmt.Errorf("read queued learned words: %w", err)
	}
	for _, word := range local {
		if !word.Confirmed() {
			pending[word.ID] = true
		}
	}
	return pending, nil
}

// PushLocalChanges drains the change queue and replays every entry against
// the remote in FIFO order. Entries are independent: one failure never stops
// the rest of the pass.
func (e *Engine) PushLocalChanges(ctx context.Context) PushReport {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	start := time.Now()
	var report PushReport
	defer func() {
		report.Duration = time.Since(start)
		e.metrics.ObservePass("push", report.Duration.Seconds())
	}()

	if err := e.local.Initialize(ctx); err != nil {
		report.DrainErr = err
		logger.Error("push aborted: local store unavailable", "error", err)
		return report
	}
	changes, err := e.local.DrainQueue(ctx)
	if err != nil {
		report.DrainErr = err
		logger.Error("failed to drain change queue", "error", err)
		return report
	}
	report.Drained = len(changes)

	// Records with a change waiting for retry; later changes to them wait too.
	blocked := make(map[string]bool)
	for _, change := range changes {
		result := e.process(ctx, change, blocked)
		e.metrics.RecordChange(change.Table, string(change.Action), string(result.Outcome))
		report.Results = append(report.Results, result)
	}

	if remaining, err := e.local.QueueLength(ctx); err == nil {
		report.Remaining = remaining
		e.metrics.SetQueueLength(remaining)
	}

	logger.Info("push finished",
		"drained", report.Drained,
		"delivered", report.Count(Delivered),
		"failed", report.Count(Failed),
		"deferred", report.Count(Deferred),
		"lost", report.Count(Lost),
		"skipped", report.Count(Skipped),
	)
	return report
}

func (e *Engine) process(ctx context.Context, change localstore.Change, blocked map[string]bool) EntryResult {
	result := EntryResult{Change: change}
	key := change.RecordKey()

	if blocked[key] {
		if err := e.local.RequeueChange(ctx, change); err != nil {
			result.Outcome, result.Err = Lost, err
			logger.Error("change lost", "id", change.ID, "table", change.Table, "error", err)
			return result
		}
		result.Outcome = Deferred
		return result
	}

	handled, err := e.dispatch(ctx, change)
	switch {
	case !handled:
		result.Outcome = Skipped
		logger.Debug("no remote handler for change", "id", change.ID, "table", change.Table)
	case err == nil:
		result.Outcome = Delivered
		e.confirm(ctx, change)
	case errors.Is(err, ErrUndecodable) || errors.Is(err, ErrNoRecordID) || errors.Is(err, localstore.ErrUnknownAction):
		result.Outcome, result.Err = Lost, err
		logger.Error("dropping malformed change", "id", change.ID, "table", change.Table, "error", err)
	case change.Attempts < e.maxRetries:
		retry := change
		retry.Attempts++
		if requeueErr := e.local.RequeueChange(ctx, retry); requeueErr != nil {
			result.Outcome, result.Err = Lost, errors.Join(err, requeueErr)
			logger.Error("change lost", "id", change.ID, "table", change.Table, "error", result.Err)
			return result
		}
		blocked[key] = true
		result.Outcome, result.Err = Failed, err
		logger.Warn("change failed, re-enqueued",
			"id", change.ID, "table", change.Table, "action", change.Action,
			"attempt", retry.Attempts, "error", err)
	default:
		result.Outcome, result.Err = Lost, err
		logger.Error("change lost",
			"id", change.ID, "table", change.Table, "action", change.Action,
			"attempts", change.Attempts, "error", err)
	}
	return result
}

// dispatch sends one change. handled is false for tables the remote does not
// receive changes for.
func (e *Engine) dispatch(ctx context.Context, change localstore.Change) (handled bool, err error) {
	if change.Table != db.TableLearnedWords {
		return false, nil
	}
	if err := change.Action.Validate(); err != nil {
		return true, err
	}
	if change.Payload == nil {
		return true, ErrUndecodable
	}
	id, ok := change.PayloadID()
	if !ok {
		return true, ErrNoRecordID
	}

	row := remoteRow(change.Payload)
	rctx, cancel := e.remoteContext(ctx)
	defer cancel()

	switch change.Action {
	case localstore.ActionInsert:
		return true, e.remote.Upsert(rctx, change.Table, row)
	case localstore.ActionUpdate:
		return true, e.remote.Update(rctx, change.Table, row, id)
	default:
		return true, e.remote.Delete(rctx, change.Table, id)
	}
}

func (e *Engine) confirm(ctx context.Context, change localstore.Change) {
	if change.Table != db.TableLearnedWords || change.Action == localstore.ActionDelete {
		return
	}
	id, _ := change.PayloadID()
	if err := e.local.MarkLearnedSynced(ctx, id); err != nil {
		logger.Warn("failed to mark learned word synced", "id", id, "error", err)
	}
}

func remoteRow(payload map[string]any) remote.Row {
	row := make(remote.Row, len(payload))
	for k, v := range payload {
		row[k] = v
	}
	for _, column := range localOnlyColumns {
		delete(row, column)
	}
	return row
}
