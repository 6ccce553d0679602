package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/logger"
)

const helpText = "Commands:\n" +
	"/start - download the vocabulary and your learned words\n" +
	"/words [category] - list vocabulary words\n" +
	"/learn <word-id> - mark a word as learned\n" +
	"/forget <learned-id> - remove a learned word\n" +
	"/sync - send your changes and refresh\n" +
	"/status - show queued changes and today's limit\n" +
	"/export - download your learned words as CSV\n\n" +
	"Administrators can attach a CSV file (source,target[,category[,id]]) to update the shared vocabulary."

func (h *Handlers) DefaultHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		logger.Error("received invalid update in defaultHandler")
		return
	}

	if update.Message.Chat.ID == 0 {
		logger.Error("chat ID is zero in defaultHandler")
		return
	}

	if update.Message.Document != nil && h.importer != nil {
		h.importer.HandleDocumentImport(ctx, b, update)
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   helpText,
	}); err != nil {
		logger.Error("failed to send message in defaultHandler", "error", err)
	}
}
