package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/bot/importexport"
	"github.com/smith3v/word-sync/pkg/bridge"
	"github.com/smith3v/word-sync/pkg/learning"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/syncer"
)

// Handlers owns everything the bot commands touch.
type Handlers struct {
	store    localstore.Store
	engine   *syncer.Engine
	learning *learning.Service
	saver    bridge.WordSaver
	importer *importexport.Importer
}

func New(store localstore.Store, engine *syncer.Engine, service *learning.Service, saver bridge.WordSaver, importer *importexport.Importer) *Handlers {
	return &Handlers{
		store:    store,
		engine:   engine,
		learning: service,
		saver:    saver,
		importer: importer,
	}
}

// Register attaches every command handler to b.
func (h *Handlers) Register(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, h.HandleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/words", bot.MatchTypePrefix, h.HandleWords)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/learn", bot.MatchTypePrefix, h.HandleLearn)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/forget", bot.MatchTypePrefix, h.HandleForget)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/sync", bot.MatchTypeExact, h.HandleSync)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact, h.HandleStatus)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/export", bot.MatchTypeExact, h.HandleExport)
}

func validMessage(update *models.Update) bool {
	return update != nil && update.Message != nil && update.Message.From != nil && update.Message.Chat.ID != 0
}

func userKey(update *models.Update) string {
	return strconv.FormatInt(update.Message.From.ID, 10)
}

// commandArgs returns the words after the command itself.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

func reply(ctx context.Context, b *bot.Bot, update *models.Update, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	}); err != nil {
		logger.Error("failed to send reply", "chat_id", update.Message.Chat.ID, "error", err)
	}
}

// refreshBridge hands the user's word pairs to the native bridge. Failures
// are logged only; the bridge is a convenience copy.
func (h *Handlers) refreshBridge(ctx context.Context, userID string) {
	if h.saver == nil {
		return
	}
	if _, err := bridge.SyncUserWords(ctx, h.store, h.saver, userID); err != nil {
		logger.Warn("failed to refresh native bridge", "user_id", userID, "error", err)
	}
}
