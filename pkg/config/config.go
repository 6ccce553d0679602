package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/smith3v/word-sync/pkg/logger"
)

type Config struct {
	Remote   DatabaseConfig `json:"remote"`
	Local    LocalConfig    `json:"local"`
	Sync     SyncConfig     `json:"sync"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Bridge   BridgeConfig   `json:"bridge"`
	Learning LearningConfig `json:"learning"`
}

// DatabaseConfig describes the remote Postgres store of record.
type DatabaseConfig struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	Port     int    `json:"port"`
	SSLMode  string `json:"sslmode"`
}

// LocalConfig selects the on-device cache backend. Backend is one of
// "auto", "sqlite", "kv" or "memory".
type LocalConfig struct {
	Backend string      `json:"backend"`
	Path    string      `json:"path"`
	Redis   RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

type SyncConfig struct {
	// UserID is the account synced by the scheduler.
	UserID               string `json:"user_id"`
	Schedule             string `json:"schedule"`
	PullMode             string `json:"pull_mode"`
	MaxRetries           int    `json:"max_retries"`
	RemoteTimeoutSeconds int    `json:"remote_timeout_seconds"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AdminUserIDs may upload vocabulary CSV files.
	AdminUserIDs []int64 `json:"admin_user_ids"`
}

func (t TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range t.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	GormLevel  string `json:"gorm_level"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

type MetricsConfig struct {
	Addr string `json:"addr"`
}

type BridgeConfig struct {
	WordsFile string `json:"words_file"`
}

type LearningConfig struct {
	FreeDailyLimit int `json:"free_daily_limit"`
}

const (
	DefaultLocalBackend = "auto"
	DefaultLocalPath    = "data/lingua_flow.db"
	DefaultSchedule     = "*/15 * * * *"
	DefaultPullMode     = "direct"
	DefaultRedisPrefix  = "lingua_flow"
)

var AppConfig Config

func LoadConfig(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		logger.Error("failed to open config file", "error", err)
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&AppConfig); err != nil {
		logger.Error("failed to decode config file", "error", err)
		return err
	}

	AppConfig.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Local.Backend) == "" {
		c.Local.Backend = DefaultLocalBackend
	}
	if strings.TrimSpace(c.Local.Path) == "" {
		c.Local.Path = DefaultLocalPath
	}
	if strings.TrimSpace(c.Local.Redis.KeyPrefix) == "" {
		c.Local.Redis.KeyPrefix = DefaultRedisPrefix
	}
	if strings.TrimSpace(c.Sync.Schedule) == "" {
		c.Sync.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(c.Sync.PullMode) == "" {
		c.Sync.PullMode = DefaultPullMode
	}
	if c.Sync.MaxRetries < 0 {
		c.Sync.MaxRetries = 0
	}
}
