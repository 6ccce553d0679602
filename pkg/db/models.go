// pkg/db/models.go
package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TableVocabularyWords = "vocabulary_words"
	TableLearnedWords    = "learned_words"
	TableSyncQueue       = "sync_queue"
)

const (
	SyncStatusPending   = 0
	SyncStatusConfirmed = 1
)

// VocabularyWord is reference data owned by the remote store. Locally it is
// only ever overwritten by a pull.
type VocabularyWord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	SourceText string    `gorm:"column:en;not null;default:'';index:idx_vocab_order,priority:2" json:"en"`
	TargetText string    `gorm:"column:he;not null;default:''" json:"he"`
	Category   string    `gorm:"not null;default:'';index:idx_vocab_order,priority:1" json:"category"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (VocabularyWord) TableName() string {
	return TableVocabularyWords
}

type LearnedWord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"not null;index:idx_learned_user_at" json:"user_id"`
	WordID     string    `gorm:"not null" json:"word_id"`
	LearnedAt  time.Time `gorm:"index:idx_learned_user_at" json:"learned_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
	SyncStatus int       `gorm:"not null;default:0" json:"sync_status"`
}

func (LearnedWord) TableName() string {
	return TableLearnedWords
}

func (w LearnedWord) Confirmed() bool {
	return w.SyncStatus != SyncStatusPending
}

// RemoteLearnedWord is the store-of-record shape of learned_words. It has no
// sync status; that column only exists on the device.
type RemoteLearnedWord struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	WordID    string    `gorm:"not null" json:"word_id"`
	LearnedAt time.Time `json:"learned_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (RemoteLearnedWord) TableName() string {
	return TableLearnedWords
}

type QueuedChange struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Table     string         `gorm:"column:table_name;not null"`
	Action    string         `gorm:"not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime:false"`
	Attempts  int            `gorm:"not null;default:0"`
}

func (QueuedChange) TableName() string {
	return TableSyncQueue
}
