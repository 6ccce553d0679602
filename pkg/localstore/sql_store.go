package localstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const vocabularyBatchSize = 200

// SQLStore is the relational backend. Every statement goes through gorm's
// parameter binding, so text values are stored verbatim.
type SQLStore struct {
	db    *gorm.DB
	clock func() time.Time

	initMu sync.Mutex
	ready  atomic.Bool
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(gdb *gorm.DB, opts ...Option) *SQLStore {
	o := buildOptions(opts)
	return &SQLStore{db: gdb, clock: o.clock}
}

func (s *SQLStore) Backend() string {
	return BackendSQLite
}

func (s *SQLStore) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.ready.Load() {
		return nil
	}
	if s.db == nil {
		return ErrStoreUnavailable
	}
	if err := db.MigrateLocal(s.db.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.ready.Store(true)
	return nil
}

func (s *SQLStore) conn(ctx context.Context) (*gorm.DB, error) {
	if !s.ready.Load() {
		return nil, ErrStoreUnavailable
	}
	return s.db.WithContext(ctx), nil
}

func (s *SQLStore) ReplaceVocabulary(ctx context.Context, rows []db.VocabularyWord) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	normalized := normalizeVocabulary(rows, s.clock())

	return conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&db.VocabularyWord{}).Error; err != nil {
			return fmt.Errorf("clear vocabulary: %w", err)
		}
		if len(normalized) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(normalized, vocabularyBatchSize).Error; err != nil {
			return fmt.Errorf("write vocabulary: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) ReadVocabulary(ctx context.Context) ([]db.VocabularyWord, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []db.VocabularyWord
	if err := conn.Order("category ASC, en ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) EnqueueChange(ctx context.Context, table string, action Action, payload any) (Change, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return Change{}, err
	}
	row, err := s.newQueueRow(table, action, payload)
	if err != nil {
		return Change{}, err
	}
	if err := conn.Create(&row).Error; err != nil {
		return Change{}, fmt.Errorf("enqueue %s %s: %w", action, table, err)
	}
	return changeFromRow(row), nil
}

func (s *SQLStore) newQueueRow(table string, action Action, payload any) (db.QueuedChange, error) {
	if table == "" {
		return db.QueuedChange{}, ErrEmptyTable
	}
	if err := action.Validate(); err != nil {
		return db.QueuedChange{}, err
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return db.QueuedChange{}, err
	}
	return db.QueuedChange{
		Table:     table,
		Action:    string(action),
		Payload:   datatypes.JSON(raw),
		CreatedAt: s.clock(),
	}, nil
}

func (s *SQLStore) DrainQueue(ctx context.Context) ([]Change, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []db.QueuedChange
	err = conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Where("id <= ?", rows[len(rows)-1].ID).Delete(&db.QueuedChange{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}

	changes := make([]Change, 0, len(rows))
	for _, row := range rows {
		changes = append(changes, changeFromRow(row))
	}
	return changes, nil
}

func (s *SQLStore) RequeueChange(ctx context.Context, change Change) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := change.Action.Validate(); err != nil {
		return err
	}
	row := db.QueuedChange{
		Table:     change.Table,
		Action:    string(change.Action),
		Payload:   datatypes.JSON(change.Raw),
		CreatedAt: change.CreatedAt,
		Attempts:  change.Attempts,
	}
	if err := conn.Create(&row).Error; err != nil {
		return fmt.Errorf("requeue change %d: %w", change.ID, err)
	}
	return nil
}

func (s *SQLStore) QueuedRecordIDs(ctx context.Context, table string) (map[string]bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []db.QueuedChange
	if err := conn.Where("table_name = ?", table).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read queued %s changes: %w", table, err)
	}
	changes := make([]Change, 0, len(rows))
	for _, row := range rows {
		changes = append(changes, changeFromRow(row))
	}
	return recordIDs(changes, table), nil
}

func (s *SQLStore) QueueLength(ctx context.Context) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := conn.Model(&db.QueuedChange{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLStore) SaveLearnedWord(ctx context.Context, word db.LearnedWord, action Action) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if action != ActionDelete {
		word.SyncStatus = db.SyncStatusPending
	}
	row, err := s.newQueueRow(db.TableLearnedWords, action, word)
	if err != nil {
		return err
	}

	return conn.Transaction(func(tx *gorm.DB) error {
		switch action {
		case ActionInsert, ActionUpdate:
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&word).Error; err != nil {
				return fmt.Errorf("write learned word %s: %w", word.ID, err)
			}
		case ActionDelete:
			if err := tx.Where("id = ?", word.ID).Delete(&db.LearnedWord{}).Error; err != nil {
				return fmt.Errorf("delete learned word %s: %w", word.ID, err)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("enqueue %s learned word %s: %w", action, word.ID, err)
		}
		return nil
	})
}

func (s *SQLStore) UpsertLearnedWords(ctx context.Context, words []db.LearnedWord) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	if err := conn.Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(words, vocabularyBatchSize).Error; err != nil {
		return fmt.Errorf("upsert learned words: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteLearnedWords(ctx context.Context, ids []string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := conn.Where("id IN ?", ids).Delete(&db.LearnedWord{}).Error; err != nil {
		return fmt.Errorf("delete learned words: %w", err)
	}
	return nil
}

func (s *SQLStore) GetLearnedWord(ctx context.Context, id string) (db.LearnedWord, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return db.LearnedWord{}, err
	}
	var word db.LearnedWord
	if err := conn.Where("id = ?", id).First(&word).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.LearnedWord{}, fmt.Errorf("learned word %s: %w", id, ErrNotFound)
		}
		return db.LearnedWord{}, err
	}
	return word, nil
}

func (s *SQLStore) ListLearnedWords(ctx context.Context, userID string) ([]db.LearnedWord, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var words []db.LearnedWord
	if err := conn.Where("user_id = ?", userID).Order("learned_at ASC, id ASC").Find(&words).Error; err != nil {
		return nil, fmt.Errorf("list learned words: %w", err)
	}
	return words, nil
}

func (s *SQLStore) CountLearnedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := conn.Model(&db.LearnedWord{}).
		Where("user_id = ? AND learned_at >= ?", userID, since.UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count learned words: %w", err)
	}
	return count, nil
}

func (s *SQLStore) MarkLearnedSynced(ctx context.Context, id string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return conn.Model(&db.LearnedWord{}).
		Where("id = ?", id).
		Update("sync_status", db.SyncStatusConfirmed).Error
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalizeVocabulary(rows []db.VocabularyWord, now time.Time) []db.VocabularyWord {
	out := make([]db.VocabularyWord, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			logger.Warn("skipping vocabulary row without id", "en", row.SourceText)
			continue
		}
		if row.UpdatedAt.IsZero() {
			row.UpdatedAt = now
		}
		row.UpdatedAt = row.UpdatedAt.UTC()
		out = append(out, row)
	}
	return out
}
