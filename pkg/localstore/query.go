package localstore

import (
	"context"

	"github.com/smith3v/word-sync/pkg/db"
)

// LearnedVocabulary returns the vocabulary entries the user has learned, in
// the order they were learned. Learned words whose vocabulary row is not
// cached locally are left out.
func LearnedVocabulary(ctx context.Context, store Store, userID string) ([]db.VocabularyWord, error) {
	vocab, err := store.ReadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	learned, err := store.ListLearnedWords(ctx, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]db.VocabularyWord, len(vocab))
	for _, word := range vocab {
		byID[word.ID] = word
	}
	seen := make(map[string]bool, len(learned))
	words := make([]db.VocabularyWord, 0, len(learned))
	for _, entry := range learned {
		word, ok := byID[entry.WordID]
		if !ok || seen[word.ID] {
			continue
		}
		seen[word.ID] = true
		words = append(words, word)
	}
	return words, nil
}
