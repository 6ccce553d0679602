package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/smith3v/word-sync/pkg/bot/handlers"
	"github.com/smith3v/word-sync/pkg/bot/importexport"
	"github.com/smith3v/word-sync/pkg/bridge"
	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/learning"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/metrics"
	"github.com/smith3v/word-sync/pkg/remote"
	"github.com/smith3v/word-sync/pkg/syncer"
)

func main() {
	if err := config.LoadConfig("config.json"); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.AppConfig
	if err := logger.Configure(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	m := metrics.NewMetrics()

	local, err := localstore.Open(cfg.Local, cfg.Logging.GormLevel)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer local.Close()
	if err := local.Initialize(ctx); err != nil {
		logger.Error("failed to initialize local store", "backend", local.Backend(), "error", err)
		os.Exit(1)
	}
	m.SetBackend(local.Backend())
	logger.Info("local store ready", "backend", local.Backend())

	rs, err := remote.OpenPostgres(cfg.Remote, cfg.Logging.GormLevel)
	if err != nil {
		logger.Error("failed to open remote store", "error", err)
		os.Exit(1)
	}
	defer rs.Close()
	if err := rs.MigrateSchema(ctx); err != nil {
		logger.Error("failed to migrate remote schema", "error", err)
		os.Exit(1)
	}

	mode, err := syncer.ParsePullMode(cfg.Sync.PullMode)
	if err != nil {
		logger.Error("invalid pull mode", "error", err)
		os.Exit(1)
	}
	engine := syncer.New(local, rs,
		syncer.WithPullMode(mode),
		syncer.WithMaxRetries(cfg.Sync.MaxRetries),
		syncer.WithRemoteTimeout(time.Duration(cfg.Sync.RemoteTimeoutSeconds)*time.Second),
		syncer.WithMetrics(m),
	)

	if cfg.Sync.UserID != "" {
		scheduler := syncer.NewScheduler(engine, cfg.Sync.UserID, cfg.Sync.Schedule)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start sync scheduler", "error", err)
			os.Exit(1)
		}
		defer scheduler.Stop()
	}

	if strings.TrimSpace(cfg.Metrics.Addr) != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, m)
	}

	var saver bridge.WordSaver
	if cfg.Bridge.WordsFile != "" {
		saver = bridge.NewFileSaver(cfg.Bridge.WordsFile)
	}

	importer := importexport.NewImporter(rs)
	if cfg.Sync.UserID != "" {
		importer.AfterImport = func(ctx context.Context) {
			engine.PullFromRemote(ctx, cfg.Sync.UserID)
		}
	}

	service := learning.NewService(local, learning.WithDailyLimit(cfg.Learning.FreeDailyLimit))
	h := handlers.New(local, engine, service, saver, importer)

	b, err := bot.New(cfg.Telegram.Token, bot.WithDefaultHandler(h.DefaultHandler))
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}
	h.Register(b)

	logger.Info("Starting bot...")
	b.Start(ctx)
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}
