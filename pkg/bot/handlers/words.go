package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/learning"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
)

const maxListedWords = 30

func (h *Handlers) HandleWords(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleWords")
		return
	}
	category := strings.Join(commandArgs(update.Message.Text), " ")

	vocab, err := h.store.ReadVocabulary(ctx)
	if err != nil {
		logger.Error("failed to read vocabulary", "error", err)
		reply(ctx, b, update, "Failed to load the vocabulary. Please try again later.")
		return
	}

	var lines []string
	total := 0
	for _, word := range vocab {
		if category != "" && !strings.EqualFold(word.Category, category) {
			continue
		}
		total++
		if len(lines) < maxListedWords {
			lines = append(lines, fmt.Sprintf("%s: %s = %s", word.ID, word.SourceText, word.TargetText))
		}
	}
	if total == 0 {
		if category != "" {
			reply(ctx, b, update, fmt.Sprintf("No words in category %q.", category))
			return
		}
		reply(ctx, b, update, "The vocabulary is empty. Try /sync first.")
		return
	}

	text := strings.Join(lines, "\n")
	if total > len(lines) {
		text += fmt.Sprintf("\n...and %d more.", total-len(lines))
	}
	reply(ctx, b, update, text)
}

func (h *Handlers) HandleLearn(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleLearn")
		return
	}
	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, update, "Usage: /learn <word-id>")
		return
	}
	userID := userKey(update)

	word, err := h.learning.LearnWord(ctx, userID, args[0])
	switch {
	case errors.Is(err, learning.ErrWordNotFound):
		reply(ctx, b, update, "There is no word with that id. Use /words to find one.")
		return
	case errors.Is(err, learning.ErrDailyLimitReached):
		reply(ctx, b, update, "You have reached today's limit of new words. Come back tomorrow!")
		return
	case err != nil:
		logger.Error("failed to learn word", "user_id", userID, "word_id", args[0], "error", err)
		reply(ctx, b, update, "Failed to save the word. Please try again later.")
		return
	}
	h.refreshBridge(ctx, userID)

	text := fmt.Sprintf("Saved! Your learned-word id is %s.", word.ID)
	if left, err := h.learning.Remaining(ctx, userID); err == nil && left >= 0 {
		text += fmt.Sprintf(" %d new words left today.", left)
	}
	reply(ctx, b, update, text)
}

func (h *Handlers) HandleForget(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleForget")
		return
	}
	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, update, "Usage: /forget <learned-id>")
		return
	}
	userID := userKey(update)

	err := h.learning.ForgetWord(ctx, userID, args[0])
	switch {
	case errors.Is(err, localstore.ErrNotFound), errors.Is(err, learning.ErrNotOwner):
		reply(ctx, b, update, "You have no learned word with that id.")
		return
	case err != nil:
		logger.Error("failed to forget word", "user_id", userID, "id", args[0], "error", err)
		reply(ctx, b, update, "Failed to remove the word. Please try again later.")
		return
	}
	h.refreshBridge(ctx, userID)
	reply(ctx, b, update, "Removed. The change will reach the server on the next sync.")
}
