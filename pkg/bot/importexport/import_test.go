package importexport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	telegram "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/smith3v/word-sync/pkg/config"
	dbpkg "github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/internal/testutil"
	"github.com/smith3v/word-sync/pkg/logger"
)

type recordedRequest struct {
	path        string
	method      string
	contentType string
	body        []byte
}

type mockClient struct {
	requests []recordedRequest
	response string
}

func newMockClient() *mockClient {
	return &mockClient{
		response: `{"ok":true,"result":{}}`,
	}
}

func (m *mockClient) Do(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if err := req.Body.Close(); err != nil {
		return nil, fmt.Errorf("failed to close request body: %w", err)
	}
	m.requests = append(m.requests, recordedRequest{
		path:        req.URL.Path,
		method:      req.Method,
		contentType: req.Header.Get("Content-Type"),
		body:        body,
	})

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(m.response)),
		Header:     make(http.Header),
	}
	return resp, nil
}

func (m *mockClient) lastMessageText(t *testing.T) string {
	t.Helper()
	if len(m.requests) == 0 {
		t.Fatalf("expected at least one recorded request")
	}
	req := m.requests[len(m.requests)-1]

	mediaType, params, err := mime.ParseMediaType(req.contentType)
	if err != nil {
		t.Fatalf("failed to parse media type: %v", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		t.Fatalf("unexpected media type: %s", mediaType)
	}

	reader := multipart.NewReader(bytes.NewReader(req.body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read multipart part: %v", err)
		}
		if part.FormName() == "text" {
			data, err := io.ReadAll(part)
			if err != nil {
				t.Fatalf("failed to read text part: %v", err)
			}
			return string(data)
		}
	}
	t.Fatalf("text field not found in request")
	return ""
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestTelegramBot(t *testing.T, client *mockClient) *telegram.Bot {
	t.Helper()
	b, err := telegram.New("test-token",
		telegram.WithSkipGetMe(),
		telegram.WithHTTPClient(time.Second, client),
	)
	if err != nil {
		t.Fatalf("failed to create test bot: %v", err)
	}
	return b
}

func newTestDocumentUpdate(fileName, fileID string, userID int64) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{
				ID: userID,
			},
			Chat: models.Chat{
				ID:   userID,
				Type: models.ChatTypePrivate,
			},
			Document: &models.Document{
				FileID:   fileID,
				FileName: fileName,
			},
		},
	}
}

func withAdmin(t *testing.T, ids ...int64) {
	t.Helper()
	originalConfig := config.AppConfig
	t.Cleanup(func() {
		config.AppConfig = originalConfig
	})
	config.AppConfig.Telegram.Token = "test-token"
	config.AppConfig.Telegram.AdminUserIDs = ids
}

func TestHandleDocumentImportRequiresAdmin(t *testing.T) {
	logger.SetLogLevel(logger.ERROR)
	withAdmin(t, 1)

	client := newMockClient()
	b := newTestTelegramBot(t, client)
	fake := testutil.NewFakeRemote()

	NewImporter(fake).HandleDocumentImport(context.Background(), b, newTestDocumentUpdate("words.csv", "file-1", 101))

	got := client.lastMessageText(t)
	if !strings.Contains(got, "Only administrators") {
		t.Fatalf("expected admin warning, got %q", got)
	}
	if len(fake.Writes()) != 0 {
		t.Fatalf("expected no remote writes")
	}
}

func TestHandleDocumentImportRejectsNonCSVUpload(t *testing.T) {
	logger.SetLogLevel(logger.ERROR)
	withAdmin(t, 101)

	client := newMockClient()
	b := newTestTelegramBot(t, client)
	update := newTestDocumentUpdate("words.txt", "file-1", 101)

	NewImporter(testutil.NewFakeRemote()).HandleDocumentImport(context.Background(), b, update)

	got := client.lastMessageText(t)
	if !strings.Contains(got, "not a CSV") {
		t.Fatalf("expected non-CSV warning, got %q", got)
	}
}

func TestHandleDocumentImportSeedsRemote(t *testing.T) {
	logger.SetLogLevel(logger.ERROR)
	withAdmin(t, 500)

	originalTransport := http.DefaultTransport
	t.Cleanup(func() {
		http.DefaultTransport = originalTransport
	})

	var requestedPath string
	http.DefaultTransport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		requestedPath = req.URL.Path
		body := "source,target,category\nhouse,bayit,home\nit's,ze,misc\n"
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})

	client := newMockClient()
	client.response = `{"ok":true,"result":{"file_path":"files/test.csv"}}`
	b := newTestTelegramBot(t, client)
	update := newTestDocumentUpdate("words.CSV", "file-2", 500)

	fake := testutil.NewFakeRemote()
	importer := NewImporter(fake)
	pulled := false
	importer.AfterImport = func(context.Context) { pulled = true }

	importer.HandleDocumentImport(context.Background(), b, update)

	got := client.lastMessageText(t)
	if !strings.Contains(got, "Imported 2 words") {
		t.Fatalf("expected import confirmation, got %q", got)
	}
	if requestedPath != "/file/bottest-token/files/test.csv" {
		t.Fatalf("unexpected download path %q", requestedPath)
	}
	if rows := fake.Rows(dbpkg.TableVocabularyWords); len(rows) != 2 {
		t.Fatalf("expected 2 remote rows, got %d", len(rows))
	}
	if !pulled {
		t.Fatalf("expected AfterImport to run")
	}
}
