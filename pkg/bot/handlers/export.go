package handlers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/bot/importexport"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
)

func (h *Handlers) HandleExport(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in handleExport")
		return
	}
	if update.Message.Chat.Type != models.ChatTypePrivate {
		reply(ctx, b, update, "The /export command works only in private chat.")
		return
	}
	userID := userKey(update)

	words, err := localstore.LearnedVocabulary(ctx, h.store, userID)
	if err != nil {
		logger.Error("failed to fetch learned words for export", "user_id", userID, "error", err)
		reply(ctx, b, update, "Failed to export your words. Please try again later.")
		return
	}
	if len(words) == 0 {
		reply(ctx, b, update, "You have no learned words to export.")
		return
	}

	importexport.SortForExport(words)
	data, err := importexport.BuildExportCSV(words)
	if err != nil {
		logger.Error("failed to build export CSV", "user_id", userID, "error", err)
		reply(ctx, b, update, "Failed to export your words. Please try again later.")
		return
	}

	filename := importexport.ExportFilename(time.Now())
	caption := fmt.Sprintf("Your learned words (%d).", len(words))
	_, err = b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: update.Message.Chat.ID,
		Document: &models.InputFileUpload{
			Filename: filename,
			Data:     bytes.NewReader(data),
		},
		Caption: caption,
	})
	if err != nil {
		logger.Error("failed to send export document", "user_id", userID, "error", err)
		reply(ctx, b, update, "Failed to export your words. Please try again later.")
	}
}
