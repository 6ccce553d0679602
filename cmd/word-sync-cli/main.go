package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/localstore"
	"github.com/smith3v/word-sync/pkg/logger"
	"github.com/smith3v/word-sync/pkg/remote"
	"github.com/smith3v/word-sync/pkg/syncer"
	"github.com/spf13/cobra"
)

var (
	configPath string
	userID     string
)

var rootCmd = &cobra.Command{
	Use:   "word-sync-cli",
	Short: "Operate the word-sync local cache and change queue",
	Long: `word-sync-cli runs sync passes by hand against the configured local
cache and remote store. It reads the same config.json as the bot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		return logger.Configure(logger.Options{
			Level: config.AppConfig.Logging.Level,
			File:  config.AppConfig.Logging.File,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (defaults to sync.user_id)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
	rootCmd.AddCommand(pullCmd, pushCmd, queueCmd, learnCmd, seedCmd, exportCmd, migrateCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func resolveUser() (string, error) {
	if userID != "" {
		return userID, nil
	}
	if config.AppConfig.Sync.UserID != "" {
		return config.AppConfig.Sync.UserID, nil
	}
	return "", fmt.Errorf("no user: pass --user or set sync.user_id")
}

func openLocal(ctx context.Context) (localstore.Store, error) {
	store, err := localstore.Open(config.AppConfig.Local, config.AppConfig.Logging.GormLevel)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func openRemote() (*remote.GormStore, error) {
	return remote.OpenPostgres(config.AppConfig.Remote, config.AppConfig.Logging.GormLevel)
}

// withEngine opens both stores for the duration of fn.
func withEngine(ctx context.Context, fn func(*syncer.Engine) error) error {
	local, err := openLocal(ctx)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	rs, err := openRemote()
	if err != nil {
		return fmt.Errorf("open remote store: %w", err)
	}
	defer rs.Close()

	mode, err := syncer.ParsePullMode(config.AppConfig.Sync.PullMode)
	if err != nil {
		return err
	}
	engine := syncer.New(local, rs,
		syncer.WithPullMode(mode),
		syncer.WithMaxRetries(config.AppConfig.Sync.MaxRetries),
		syncer.WithRemoteTimeout(time.Duration(config.AppConfig.Sync.RemoteTimeoutSeconds)*time.Second),
	)
	return fn(engine)
}
