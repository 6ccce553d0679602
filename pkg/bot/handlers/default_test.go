package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/db"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestDefaultHandlerSendsHelpForText(t *testing.T) {
	env := newTestEnv(t)
	client := newMockClient()
	b := newTestTelegramBot(t, client)

	env.handlers.DefaultHandler(context.Background(), b, newTestUpdate("hello", 100))

	got := client.lastMessageText(t)
	if !strings.Contains(got, "Commands:") || !strings.Contains(got, "/sync") {
		t.Fatalf("expected commands message, got %q", got)
	}
}

func TestDefaultHandlerRoutesDocumentsToImporter(t *testing.T) {
	env := newTestEnv(t)

	originalConfig := config.AppConfig
	t.Cleanup(func() {
		config.AppConfig = originalConfig
	})
	config.AppConfig.Telegram.Token = "test-token"
	config.AppConfig.Telegram.AdminUserIDs = []int64{101}

	originalTransport := http.DefaultTransport
	t.Cleanup(func() {
		http.DefaultTransport = originalTransport
	})
	http.DefaultTransport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("source,target\nsun,shemesh\n")),
			Header:     make(http.Header),
		}, nil
	})

	client := newMockClient()
	client.response = `{"ok":true,"result":{"file_path":"files/test.csv"}}`
	b := newTestTelegramBot(t, client)

	env.handlers.DefaultHandler(context.Background(), b, newTestDocumentUpdate("words.csv", "file-1", 101))

	got := client.lastMessageText(t)
	if !strings.Contains(got, "Imported 1 words") {
		t.Fatalf("expected import confirmation, got %q", got)
	}
	if rows := env.remote.Rows(db.TableVocabularyWords); len(rows) != 4 {
		t.Fatalf("expected 4 remote vocabulary rows, got %d", len(rows))
	}
}
