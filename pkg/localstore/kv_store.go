package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
)

const (
	keyVocabulary   = db.TableVocabularyWords
	keyLearnedWords = db.TableLearnedWords
	keySyncQueue    = db.TableSyncQueue
	keyQueueSeq     = "sync_queue_seq"
)

type kvChange struct {
	ID        int64           `json:"id"`
	Table     string          `json:"table_name"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts,omitempty"`
}

// KVStore is the fallback backend. Every write is a read-modify-write of a
// whole collection; the mutex makes this process the single writer, and
// nothing guards against a second process sharing the bucket.
type KVStore struct {
	bucket Bucket
	clock  func() time.Time

	mu    sync.Mutex
	ready bool
}

var _ Store = (*KVStore)(nil)

func NewKVStore(bucket Bucket, opts ...Option) *KVStore {
	o := buildOptions(opts)
	return &KVStore{bucket: bucket, clock: o.clock}
}

func (s *KVStore) Backend() string {
	return BackendKV
}

func (s *KVStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if s.bucket == nil {
		return ErrStoreUnavailable
	}
	if err := s.bucket.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.ready = true
	return nil
}

func (s *KVStore) load(ctx context.Context, key string, out any) error {
	data, err := s.bucket.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) store(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.bucket.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) ReplaceVocabulary(ctx context.Context, rows []db.VocabularyWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrStoreUnavailable
	}
	normalized := normalizeVocabulary(rows, s.clock())
	// Last row wins for duplicate ids, matching the relational backend.
	index := make(map[string]int, len(normalized))
	deduped := make([]db.VocabularyWord, 0, len(normalized))
	for _, row := range normalized {
		if i, ok := index[row.ID]; ok {
			deduped[i] = row
			continue
		}
		index[row.ID] = len(deduped)
		deduped = append(deduped, row)
	}
	return s.store(ctx, keyVocabulary, deduped)
}

func (s *KVStore) ReadVocabulary(ctx context.Context) ([]db.VocabularyWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrStoreUnavailable
	}
	var rows []db.VocabularyWord
	if err := s.load(ctx, keyVocabulary, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *KVStore) EnqueueChange(ctx context.Context, table string, action Action, payload any) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Change{}, ErrStoreUnavailable
	}
	entry, err := s.newEntry(table, action, payload)
	if err != nil {
		return Change{}, err
	}
	if err := s.appendEntries(ctx, &entry); err != nil {
		return Change{}, err
	}
	return entry.change(), nil
}

func (s *KVStore) newEntry(table string, action Action, payload any) (kvChange, error) {
	if table == "" {
		return kvChange{}, ErrEmptyTable
	}
	if err := action.Validate(); err != nil {
		return kvChange{}, err
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return kvChange{}, err
	}
	return kvChange{
		Table:     table,
		Action:    string(action),
		Payload:   raw,
		CreatedAt: s.clock(),
	}, nil
}

// appendEntries assigns ids from the sequence key and appends to the queue.
// Callers hold s.mu.
func (s *KVStore) appendEntries(ctx context.Context, entries ...*kvChange) error {
	var seq int64
	if err := s.load(ctx, keyQueueSeq, &seq); err != nil {
		return err
	}
	var queue []kvChange
	if err := s.load(ctx, keySyncQueue, &queue); err != nil {
		return err
	}
	for _, entry := range entries {
		seq++
		entry.ID = seq
		queue = append(queue, *entry)
	}
	if err := s.store(ctx, keyQueueSeq, seq); err != nil {
		return err
	}
	return s.store(ctx, keySyncQueue, queue)
}

func (s *KVStore) DrainQueue(ctx context.Context) ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrStoreUnavailable
	}
	data, err := s.bucket.Swap(ctx, keySyncQueue, []byte("[]"))
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var queue []kvChange
	if err := json.Unmarshal(data, &queue); err != nil {
		return nil, fmt.Errorf("decode drained queue: %w", err)
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].ID < queue[j].ID })

	changes := make([]Change, 0, len(queue))
	for _, entry := range queue {
		changes = append(changes, entry.change())
	}
	return changes, nil
}

func (s *KVStore) RequeueChange(ctx context.Context, change Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrStoreUnavailable
	}
	if err := change.Action.Validate(); err != nil {
		return err
	}
	entry := kvChange{
		Table:     change.Table,
		Action:    string(change.Action),
		Payload:   change.Raw,
		CreatedAt: change.CreatedAt,
		Attempts:  change.Attempts,
	}
	return s.appendEntries(ctx, &entry)
}

func (s *KVStore) QueuedRecordIDs(ctx context.Context, table string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrStoreUnavailable
	}
	var queue []kvChange
	if err := s.load(ctx, keySyncQueue, &queue); err != nil {
		return nil, err
	}
	changes := make([]Change, 0, len(queue))
	for _, entry := range queue {
		changes = append(changes, entry.change())
	}
	return recordIDs(changes, table), nil
}

func (s *KVStore) QueueLength(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0, ErrStoreUnavailable
	}
	var queue []kvChange
	if err := s.load(ctx, keySyncQueue, &queue); err != nil {
		return 0, err
	}
	return int64(len(queue)), nil
}

func (s *KVStore) loadLearned(ctx context.Context) (map[string]db.LearnedWord, error) {
	learned := make(map[string]db.LearnedWord)
	if err := s.load(ctx, keyLearnedWords, &learned); err != nil {
		return nil, err
	}
	return learned, nil
}

// SaveLearnedWord writes the row first and the queue entry second; the two
// keys are not updated atomically.
func (s *KVStore) SaveLearnedWord(ctx context.Context, word db.LearnedWord, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrStoreUnavailable
	}
	if action != ActionDelete {
		word.SyncStatus = db.SyncStatusPending
	}
	entry, err := s.newEntry(db.TableLearnedWords, action, word)
	if err != nil {
		return err
	}
	learned, err := s.loadLearned(ctx)
	if err != nil {
		return err
	}
	if action == ActionDelete {
		delete(learned, word.ID)
	} else {
		learned[word.ID] = word
	}
	if err := s.store(ctx, keyLearnedWords, learned); err != nil {
		return err
	}
	return s.appendEntries(ctx, &entry)
}

func (s *KVStore) UpsertLearnedWords(ctx context.Context, words []db.LearnedWord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrStoreUnavailable
	}
	if len(words) == 0 {
		return nil
	}
	learned, err := s.loadLearned(ctx)
	if err != nil {
		return err
	}
	for _, word := range words {
		learned[word.ID] = word
	}
	return s.store(ctx, keyLearnedWords, learned)
}

func (s *KVStore) DeleteLearnedWords(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrStoreUnavailable
	}
	if len(ids) == 0 {
		return nil
	}
	learned, err := s.loadLearned(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(learned, id)
	}
	return s.store(ctx, keyLearnedWords, learned)
}

func (s *KVStore) GetLearnedWord(ctx context.Context, id string) (db.LearnedWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return db.LearnedWord{}, ErrStoreUnavailable
	}
	learned, err := s.loadLearned(ctx)
	if err != nil {
		return db.LearnedWord{}, err
	}
	word, ok := learned[id]
	if !ok {
		return db.LearnedWord{}, fmt.Errorf("learned word %s: %w", id, ErrNotFound)
	}
	return word, nil
}

func (s *KVStore) ListLearnedWords(ctx context.Context, userID string) ([]db.LearnedWord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrStoreUnavailable
	}
	learned, err := s.loadLearned(ctx)
	if err != nil {
		return nil, err
	}
	words := make([]db.LearnedWord, 0, len(learned))
	for _, word := range learned {
		if word.UserID == userID {
			words = append(words, word)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].LearnedAt.Equal(words[j].LearnedAt) {
			return words[i].ID < words[j].ID
		}
		return words[i].LearnedAt.Before(words[j].LearnedAt)
	})
	return words, nil
}

func (s *KVStore) CountLearnedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	words, err := s.ListLearnedWords(ctx, userID)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, word := range words {
		if !word.LearnedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *KVStore) MarkLearnedSynced(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrStoreUnavailable
	}
	learned, err := s.loadLearned(ctx)
	if err != nil {
		return err
	}
	word, ok := learned[id]
	if !ok {
		return nil
	}
	word.SyncStatus = db.SyncStatusConfirmed
	learned[id] = word
	return s.store(ctx, keyLearnedWords, learned)
}

func (s *KVStore) Close() error {
	if s.bucket == nil {
		return nil
	}
	return s.bucket.Close()
}

func (e kvChange) change() Change {
	change := Change{
		ID:        e.ID,
		Table:     e.Table,
		Action:    Action(e.Action),
		Raw:       e.Payload,
		CreatedAt: e.CreatedAt,
		Attempts:  e.Attempts,
	}
	if payload, err := decodePayload(e.Payload); err == nil {
		change.Payload = payload
	}
	return change
}
