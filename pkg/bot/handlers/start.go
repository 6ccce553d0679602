package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/logger"
)

func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleStart")
		return
	}
	userID := userKey(update)

	report := h.engine.PullFromRemote(ctx, userID)
	if report.InitErr != nil {
		reply(ctx, b, update, "Failed to open your word list. Please try again later.")
		return
	}
	h.refreshBridge(ctx, userID)

	vocab, err := h.store.ReadVocabulary(ctx)
	if err != nil {
		logger.Error("failed to read vocabulary", "user_id", userID, "error", err)
		reply(ctx, b, update, "Failed to open your word list. Please try again later.")
		return
	}
	learned, err := h.store.ListLearnedWords(ctx, userID)
	if err != nil {
		logger.Error("failed to list learned words", "user_id", userID, "error", err)
		reply(ctx, b, update, "Failed to open your word list. Please try again later.")
		return
	}

	text := fmt.Sprintf("Welcome! %d words are available and you have learned %d.\nUse /words to browse and /learn <id> to learn one.", len(vocab), len(learned))
	if report.VocabularyErr != nil || report.LearnedErr != nil {
		text += "\nThe server could not be reached, so this is your offline copy."
	}
	reply(ctx, b, update, text)
}
