// Package remote is the client side of the shared store of record. The sync
// engine only ever talks to the Store interface; GormStore implements it over
// Postgres in production and over sqlite in tests.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/smith3v/word-sync/pkg/db"
)

var (
	ErrUnknownTable = errors.New("table is not served by the remote store")
	ErrMissingID    = errors.New("row has no id")
	ErrUnavailable  = errors.New("remote store unavailable")
)

// Row is a record as the remote returns it: column name to value.
type Row map[string]any

// Filter matches rows whose columns equal every given value.
type Filter map[string]any

type Store interface {
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)
	// Upsert inserts row, or overwrites the existing row with the same id.
	Upsert(ctx context.Context, table string, row Row) error
	Update(ctx context.Context, table string, row Row, matchID string) error
	Delete(ctx context.Context, table string, matchID string) error
	Ping(ctx context.Context) error
}

// ID returns the row's identifier as a string.
func (r Row) ID() (string, bool) {
	switch id := r["id"].(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(id), true
	}
}

// Decode converts the row into a typed value by way of its JSON form.
func (r Row) Decode(out any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// RowFrom snapshots v, which must encode as a JSON object.
func RowFrom(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// table describes one served table: its model and the columns a client may
// write. Table and column names never come from callers unchecked.
type table struct {
	model   func() any
	columns map[string]struct{}
}

func columnSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

var tables = map[string]table{
	db.TableVocabularyWords: {
		model:   func() any { return &db.VocabularyWord{} },
		columns: columnSet("id", "en", "he", "category", "updated_at"),
	},
	db.TableLearnedWords: {
		model:   func() any { return &db.RemoteLearnedWord{} },
		columns: columnSet("id", "user_id", "word_id", "learned_at", "updated_at"),
	},
}

func lookupTable(name string) (table, error) {
	t, ok := tables[name]
	if !ok {
		return table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// Served reports whether the remote store accepts writes for name.
func Served(name string) bool {
	_, ok := tables[name]
	return ok
}
