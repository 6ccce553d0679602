// Package localstore is the on-device cache: a copy of the shared
// vocabulary, the user's learned words and the outbound change queue.
//
// Two backends implement Store. SQLStore sits on an embedded sqlite file and
// is the default on devices that can open one; KVStore keeps whole
// collections as JSON blobs in a key/value Bucket (Redis or memory) and is
// the fallback. The backend is chosen once, by Open, and the resulting
// handle is passed explicitly to whoever needs it.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/logger"
)

const (
	BackendAuto   = "auto"
	BackendSQLite = "sqlite"
	BackendKV     = "kv"
	BackendMemory = "memory"
)

var (
	ErrUnknownAction    = errors.New("unknown queue action")
	ErrInvalidPayload   = errors.New("invalid change payload")
	ErrEmptyTable       = errors.New("change table name is empty")
	ErrStoreUnavailable = errors.New("local store unavailable")
	ErrNotFound         = errors.New("record not found")
	ErrUnknownBackend   = errors.New("unknown local store backend")
)

type Store interface {
	// Initialize prepares the backend. Calling it again is a no-op.
	Initialize(ctx context.Context) error
	// ReplaceVocabulary swaps the whole vocabulary set for rows.
	ReplaceVocabulary(ctx context.Context, rows []db.VocabularyWord) error
	ReadVocabulary(ctx context.Context) ([]db.VocabularyWord, error)

	EnqueueChange(ctx context.Context, table string, action Action, payload any) (Change, error)
	// DrainQueue returns every queued change, oldest first, and empties the
	// queue in the same step. Entries cannot be recovered afterwards.
	DrainQueue(ctx context.Context) ([]Change, error)
	// RequeueChange appends a previously drained change to the tail.
	RequeueChange(ctx context.Context, change Change) error
	QueueLength(ctx context.Context) (int64, error)
	// QueuedRecordIDs returns the ids of table records that still have a
	// change waiting in the queue.
	QueuedRecordIDs(ctx context.Context, table string) (map[string]bool, error)

	// SaveLearnedWord applies action to the local learned_words row and
	// enqueues the matching change.
	SaveLearnedWord(ctx context.Context, word db.LearnedWord, action Action) error
	UpsertLearnedWords(ctx context.Context, words []db.LearnedWord) error
	// DeleteLearnedWords removes rows without queueing a change.
	DeleteLearnedWords(ctx context.Context, ids []string) error
	GetLearnedWord(ctx context.Context, id string) (db.LearnedWord, error)
	ListLearnedWords(ctx context.Context, userID string) ([]db.LearnedWord, error)
	CountLearnedSince(ctx context.Context, userID string, since time.Time) (int64, error)
	MarkLearnedSynced(ctx context.Context, id string) error

	Backend() string
	Close() error
}

// Option tunes a store at construction time.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock overrides the timestamp source used for CreatedAt stamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open selects and constructs the backend named by cfg.Backend. With "auto"
// it probes sqlite first, then Redis when one is configured, then memory.
// The returned store still needs Initialize.
func Open(cfg config.LocalConfig, gormLevel string, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendSQLite:
		return openSQLite(cfg, gormLevel, opts...)
	case BackendKV, "redis":
		bucket, err := NewRedisBucket(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewKVStore(bucket, opts...), nil
	case BackendMemory:
		return NewKVStore(NewMemoryBucket(), opts...), nil
	case BackendAuto, "":
		store, err := openSQLite(cfg, gormLevel, opts...)
		if err == nil {
			return store, nil
		}
		logger.Warn("sqlite backend unavailable, falling back", "path", cfg.Path, "error", err)
		if strings.TrimSpace(cfg.Redis.Host) != "" {
			bucket, redisErr := NewRedisBucket(cfg.Redis)
			if redisErr == nil {
				return NewKVStore(bucket, opts...), nil
			}
			logger.Warn("redis backend unavailable, falling back to memory", "error", redisErr)
		}
		return NewKVStore(NewMemoryBucket(), opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func openSQLite(cfg config.LocalConfig, gormLevel string, opts ...Option) (Store, error) {
	gdb, err := db.OpenSQLite(cfg.Path, gormLevel)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQLStore(gdb, opts...), nil
}
