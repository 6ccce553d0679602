package importexport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/remote"
)

const telegramFileURL = "https://api.telegram.org/file/bot%s/%s"

// Importer seeds the shared vocabulary from CSV files uploaded by admins.
type Importer struct {
	remote remote.Store
	// AfterImport runs once rows were stored, typically a pull so the local
	// cache picks them up.
	AfterImport func(ctx context.Context)
}

func NewImporter(rs remote.Store) *Importer {
	return &Importer{remote: rs}
}

func (i *Importer) HandleDocumentImport(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil || update.Message.Document == nil || update.Message.From == nil {
		logger.Error("invalid update in HandleDocumentImport")
		return
	}
	if update.Message.Chat.ID == 0 {
		logger.Error("chat ID is zero in HandleDocumentImport")
		return
	}

	doc := update.Message.Document
	logger.Info("Uploading file", "file_name", doc.FileName, "UserID", update.Message.From.ID)

	if !config.AppConfig.Telegram.IsAdmin(update.Message.From.ID) {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Only administrators can upload vocabulary.",
		})
		return
	}

	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".csv") {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "The uploaded file is not a CSV. Please upload a valid CSV file.",
		})
		return
	}

	file, err := b.GetFile(ctx, &bot.GetFileParams{FileID: doc.FileID})
	if err != nil {
		logger.Error("failed to get file", "error", err)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Failed to download the file. Please try again.",
		})
		return
	}

	fileURL := fmt.Sprintf(telegramFileURL, config.AppConfig.Telegram.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		logger.Error("failed to build file request", "error", err)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Error("failed to open file", "error", err)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Failed to open the file. Please try again.",
		})
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("failed to read CSV file", "error", err)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Failed to read the CSV file. Please try again.",
		})
		return
	}

	words, skipped, err := ParseVocabularyCSV(data)
	if err != nil {
		logger.Error("failed to parse CSV file", "error", err)
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Failed to read the CSV file. Please ensure it is in the correct format.",
		})
		return
	}
	if len(words) == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "No valid words found to import.",
		})
		return
	}

	stored, err := SeedVocabulary(ctx, i.remote, words)
	if err != nil {
		logger.Error("failed to store some vocabulary rows", "user_id", update.Message.From.ID, "stored", stored, "error", err)
	}
	if stored == 0 {
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   "Failed to import the vocabulary. Please try again later.",
		})
		return
	}
	if i.AfterImport != nil {
		i.AfterImport(ctx)
	}

	b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   fmt.Sprintf("Imported %d words, failed %d, skipped %d rows.", stored, len(words)-stored, skipped),
	})
}
