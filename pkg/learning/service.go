package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
)

var (
	ErrDailyLimitReached = errors.New("daily learning limit reached")
	ErrWordNotFound      = errors.New("word not found in vocabulary")
	ErrNotOwner          = errors.New("learned word belongs to another user")
)

// Service records learning actions locally. Every action writes the learned
// words table and enqueues the change for the next push.
type Service struct {
	store      localstore.Store
	dailyLimit int
	clock      func() time.Time
	newID      func() string
}

type Option func(*Service)

// WithDailyLimit caps new words per UTC day. Zero means unlimited.
func WithDailyLimit(limit int) Option {
	return func(s *Service) {
		if limit < 0 {
			limit = 0
		}
		s.dailyLimit = limit
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(store localstore.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		clock: func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LearnWord marks a vocabulary word as learned by the user.
func (s *Service) LearnWord(ctx context.Context, userID, wordID string) (db.LearnedWord, error) {
	if err := s.requireWord(ctx, wordID); err != nil {
		return db.LearnedWord{}, err
	}
	now := s.clock().UTC()
	if s.dailyLimit > 0 {
		count, err := s.store.CountLearnedSince(ctx, userID, startOfDay(now))
		if err != nil {
			return db.LearnedWord{}, err
		}
		if count >= int64(s.dailyLimit) {
			return db.LearnedWord{}, ErrDailyLimitReached
		}
	}

	word := db.LearnedWord{
		ID:        s.newID(),
		UserID:    userID,
		WordID:    wordID,
		LearnedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveLearnedWord(ctx, word, localstore.ActionInsert); err != nil {
		return db.LearnedWord{}, fmt.Errorf("save learned word: %w", err)
	}
	logger.Info("word learned", "user_id", userID, "word_id", wordID, "id", word.ID)
	word.SyncStatus = db.SyncStatusPending
	return word, nil
}

// RelearnWord marks an existing entry as reviewed again. LearnedAt keeps the
// first learning time, so a relearned word never counts against the daily
// limit.
func (s *Service) RelearnWord(ctx context.Context, userID, learnedID string) (db.LearnedWord, error) {
	word, err := s.owned(ctx, userID, learnedID)
	if err != nil {
		return db.LearnedWord{}, err
	}
	word.UpdatedAt = s.clock().UTC()
	if err := s.store.SaveLearnedWord(ctx, word, localstore.ActionUpdate); err != nil {
		return db.LearnedWord{}, fmt.Errorf("update learned word: %w", err)
	}
	word.SyncStatus = db.SyncStatusPending
	return word, nil
}

// ForgetWord removes a learned entry locally and queues the remote delete.
func (s *Service) ForgetWord(ctx context.Context, userID, learnedID string) error {
	word, err := s.owned(ctx, userID, learnedID)
	if err != nil {
		return err
	}
	if err := s.store.SaveLearnedWord(ctx, word, localstore.ActionDelete); err != nil {
		return fmt.Errorf("forget learned word: %w", err)
	}
	logger.Info("word forgotten", "user_id", userID, "id", learnedID)
	return nil
}

// Remaining returns how many new words the user may still learn today, or
// -1 when there is no limit.
func (s *Service) Remaining(ctx context.Context, userID string) (int, error) {
	if s.dailyLimit <= 0 {
		return -1, nil
	}
	count, err := s.store.CountLearnedSince(ctx, userID, startOfDay(s.clock()))
	if err != nil {
		return 0, err
	}
	left := s.dailyLimit - int(count)
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (s *Service) requireWord(ctx context.Context, wordID string) error {
	vocab, err := s.store.ReadVocabulary(ctx)
	if err != nil {
		return err
	}
	for _, word := range vocab {
		if word.ID == wordID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrWordNotFound, wordID)
}

func (s *Service) owned(ctx context.Context, userID, learnedID string) (db.LearnedWord, error) {
	word, err := s.store.GetLearnedWord(ctx, learnedID)
	if err != nil {
		return db.LearnedWord{}, err
	}
	if word.UserID != userID {
		return db.LearnedWord{}, ErrNotOwner
	}
	return word, nil
}
