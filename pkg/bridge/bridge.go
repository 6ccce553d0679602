// Package bridge hands a user's learned word pairs to the platform layer,
// which keeps them outside the sync core (a device preference store, a
// widget, a keyboard extension).
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
)

var ErrNoSaver = errors.New("no word saver configured")

// WordSaver persists a serialized word-pair map.
type WordSaver interface {
	SaveUserWords(ctx context.Context, wordPairs string) error
}

// BuildWordPairs serializes the words as a JSON object keyed by target text
// with the source text as value. Later entries win on duplicate keys.
func BuildWordPairs(words []db.VocabularyWord) (string, error) {
	pairs := make(map[string]string, len(words))
	for _, word := range words {
		if word.TargetText == "" {
			continue
		}
		pairs[word.TargetText] = word.SourceText
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("encode word pairs: %w", err)
	}
	return string(data), nil
}

// SyncUserWords rebuilds the user's word pairs from the local store and hands
// them to saver. It returns the number of pairs handed over.
func SyncUserWords(ctx context.Context, store localstore.Store, saver WordSaver, userID string) (int, error) {
	if saver == nil {
		return 0, ErrNoSaver
	}
	words, err := localstore.LearnedVocabulary(ctx, store, userID)
	if err != nil {
		return 0, fmt.Errorf("load learned vocabulary: %w", err)
	}
	payload, err := BuildWordPairs(words)
	if err != nil {
		return 0, err
	}
	if err := saver.SaveUserWords(ctx, payload); err != nil {
		return 0, fmt.Errorf("save user words: %w", err)
	}
	logger.Debug("user words handed to bridge", "user_id", userID, "pairs", len(words))
	return len(words), nil
}

// FileSaver writes the payload to a file, replacing it atomically.
type FileSaver struct {
	Path string
}

func NewFileSaver(path string) *FileSaver {
	return &FileSaver{Path: path}
}

func (s *FileSaver) SaveUserWords(ctx context.Context, wordPairs string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid([]byte(wordPairs)) {
		return fmt.Errorf("word pairs are not valid JSON")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bridge directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".user-words-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(wordPairs); err != nil {
		tmp.Close()
		return fmt.Errorf("write word pairs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace %s: %w", s.Path, err)
	}
	return nil
}

// Load reads back the last saved map.
func (s *FileSaver) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]string)
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return pairs, nil
}
