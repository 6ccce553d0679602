package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/syncer"
)

func (h *Handlers) HandleSync(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleSync")
		return
	}
	userID := userKey(update)

	push := h.engine.PushLocalChanges(ctx)
	pull := h.engine.PullFromRemote(ctx, userID)
	h.refreshBridge(ctx, userID)

	text := fmt.Sprintf("Sent %d changes", push.Count(syncer.Delivered))
	if failed := push.Count(syncer.Failed) + push.Count(syncer.Deferred); failed > 0 {
		text += fmt.Sprintf(", %d will be retried", failed)
	}
	if lost := push.Count(syncer.Lost); lost > 0 {
		text += fmt.Sprintf(", %d could not be sent", lost)
	}
	text += fmt.Sprintf(". Vocabulary: %d words.", pull.Vocabulary)
	if push.DrainErr != nil || pull.Err() != nil {
		text += "\nSome steps failed; your changes are kept locally where possible."
	}
	reply(ctx, b, update, text)
}

func (h *Handlers) HandleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleStatus")
		return
	}
	userID := userKey(update)

	queued, err := h.store.QueueLength(ctx)
	if err != nil {
		logger.Error("failed to read queue length", "error", err)
		reply(ctx, b, update, "Failed to read the sync status. Please try again later.")
		return
	}
	learned, err := h.store.ListLearnedWords(ctx, userID)
	if err != nil {
		logger.Error("failed to list learned words", "user_id", userID, "error", err)
		reply(ctx, b, update, "Failed to read the sync status. Please try again later.")
		return
	}
	pending := 0
	for _, word := range learned {
		if !word.Confirmed() {
			pending++
		}
	}

	text := fmt.Sprintf("Storage: %s\nQueued changes: %d\nLearned words: %d (%d not yet confirmed)",
		h.store.Backend(), queued, len(learned), pending)
	if left, err := h.learning.Remaining(ctx, userID); err == nil && left >= 0 {
		text += fmt.Sprintf("\nNew words left today: %d", left)
	}
	reply(ctx, b, update, text)
}
