// pkg/db/repository.go
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenSQLite opens (creating if needed) the on-device database file. The
// connection pool is pinned to one connection: the file is owned by this
// process and sqlite serializes writers anyway.
func OpenSQLite(path, gormLevel string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLoggerFor("local", gormLevel)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("access sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

func PostgresDSN(cfg config.DatabaseConfig) string {
	return "host=" + cfg.Host +
		" user=" + cfg.User +
		" password=" + cfg.Password +
		" dbname=" + cfg.DBName +
		" port=" + strconv.Itoa(cfg.Port) +
		" sslmode=" + cfg.SSLMode
}

func OpenPostgres(cfg config.DatabaseConfig, gormLevel string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(PostgresDSN(cfg)), &gorm.Config{Logger: gormLoggerFor("remote", gormLevel)})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	return gdb, nil
}

func gormLoggerFor(store, level string) gormlogger.Interface {
	gormLogger, err := newGormLogger(store, level)
	if err != nil {
		logger.Error("invalid gorm log level", "value", level, "error", err)
	}
	return gormLogger
}

// MigrateLocal ensures the three device tables exist. It is idempotent.
func MigrateLocal(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	if err := gdb.AutoMigrate(&VocabularyWord{}, &LearnedWord{}, &QueuedChange{}); err != nil {
		logger.Error("failed to auto-migrate local database", "error", err)
		return err
	}
	return nil
}

// MigrateRemote creates the store-of-record tables. Production schemas are
// owned by the backend; this exists for local development and tests.
func MigrateRemote(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	if err := gdb.AutoMigrate(&VocabularyWord{}, &RemoteLearnedWord{}); err != nil {
		logger.Error("failed to auto-migrate remote database", "error", err)
		return err
	}
	return nil
}
