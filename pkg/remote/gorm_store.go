package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/smith3v/word-sync/pkg/config"
	"github.com/smith3v/word-sync/pkg/db"
	"github.com/smith3v/word-sync/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUnknownColumn = errors.New("unknown column")

// GormStore serves the allow-listed tables over a gorm connection.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

// OpenPostgres connects to the store of record described by cfg.
func OpenPostgres(cfg config.DatabaseConfig, gormLevel string) (*GormStore, error) {
	gdb, err := db.OpenPostgres(cfg, gormLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewGormStore(gdb), nil
}

// MigrateSchema creates the served tables. Used for development databases
// and tests; production schemas are managed elsewhere.
func (s *GormStore) MigrateSchema(ctx context.Context) error {
	return db.MigrateRemote(s.db.WithContext(ctx))
}

func (s *GormStore) Select(ctx context.Context, name string, filter Filter) ([]Row, error) {
	t, err := lookupTable(name)
	if err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(t.model())
	if len(filter) > 0 {
		for column := range filter {
			if _, ok := t.columns[column]; !ok {
				return nil, fmt.Errorf("select %s: %w: %q", name, ErrUnknownColumn, column)
			}
		}
		query = query.Where(map[string]any(filter))
	}

	var records []map[string]any
	if err := query.Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("select %s: %w", name, err)
	}
	rows := make([]Row, 0, len(records))
	for _, record := range records {
		rows = append(rows, Row(record))
	}
	return rows, nil
}

func (s *GormStore) Upsert(ctx context.Context, name string, row Row) error {
	t, err := lookupTable(name)
	if err != nil {
		return err
	}
	id, ok := row.ID()
	if !ok {
		return fmt.Errorf("upsert %s: %w", name, ErrMissingID)
	}
	values := writableValues(name, t, row)
	values["id"] = id

	updates := make([]string, 0, len(values))
	for column := range values {
		if column != "id" {
			updates = append(updates, column)
		}
	}
	sort.Strings(updates)
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}}
	if len(updates) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.AssignmentColumns(updates)
	}

	if err := s.db.WithContext(ctx).Model(t.model()).Clauses(onConflict).Create(values).Error; err != nil {
		return fmt.Errorf("upsert %s %s: %w", name, id, err)
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, name string, row Row, matchID string) error {
	t, err := lookupTable(name)
	if err != nil {
		return err
	}
	if matchID == "" {
		return fmt.Errorf("update %s: %w", name, ErrMissingID)
	}
	values := writableValues(name, t, row)
	delete(values, "id")
	if len(values) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Model(t.model()).Where("id = ?", matchID).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("update %s %s: %w", name, matchID, result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Debug("remote update matched no rows", "table", name, "id", matchID)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, name string, matchID string) error {
	t, err := lookupTable(name)
	if err != nil {
		return err
	}
	if matchID == "" {
		return fmt.Errorf("delete %s: %w", name, ErrMissingID)
	}
	if err := s.db.WithContext(ctx).Where("id = ?", matchID).Delete(t.model()).Error; err != nil {
		return fmt.Errorf("delete %s %s: %w", name, matchID, err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// writableValues keeps the served columns of row. Numbers decoded from queued
// payloads arrive as json.Number and are converted for the driver.
func writableValues(name string, t table, row Row) map[string]any {
	values := make(map[string]any, len(row))
	for column, value := range row {
		if _, ok := t.columns[column]; !ok {
			logger.Debug("dropping column not served by remote", "table", name, "column", column)
			continue
		}
		if number, ok := value.(json.Number); ok {
			if i, err := number.Int64(); err == nil {
				value = i
			} else if f, err := number.Float64(); err == nil {
				value = f
			} else {
				value = number.String()
			}
		}
		values[column] = value
	}
	return values
}
