package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/smith3v/word-sync/pkg/remote"
)

var ErrInjected = errors.New("injected remote failure")

// Call records one request made to a FakeRemote.
type Call struct {
	Method string
	Table  string
	ID     string
	Row    remote.Row
}

// FakeRemote is an in-memory remote.Store with call recording and scripted
// failures.
type FakeRemote struct {
	mu       sync.Mutex
	tables   map[string]map[string]remote.Row
	calls    []Call
	offline  bool
	failures map[string]int
	selects  map[string]int

	// BeforeWrite, when set, runs before each write is applied. It is called
	// without the fake's lock held.
	BeforeWrite func(Call)
}

var _ remote.Store = (*FakeRemote)(nil)

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		tables:   make(map[string]map[string]remote.Row),
		failures: make(map[string]int),
		selects:  make(map[string]int),
	}
}

// Seed stores rows without recording calls.
func (f *FakeRemote) Seed(table string, rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		id, _ := row.ID()
		f.table(table)[id] = copyRow(row)
	}
}

// SetOffline makes every call fail with ErrInjected until reset.
func (f *FakeRemote) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// FailWrites makes the next n writes touching id fail.
func (f *FakeRemote) FailWrites(id string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = n
}

// FailSelects makes the next n selects from table fail.
func (f *FakeRemote) FailSelects(table string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects[table] = n
}

func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Writes returns the recorded Upsert, Update and Delete calls in order.
func (f *FakeRemote) Writes() []Call {
	var writes []Call
	for _, call := range f.Calls() {
		if call.Method != "Select" && call.Method != "Ping" {
			writes = append(writes, call)
		}
	}
	return writes
}

// Rows returns a table's rows ordered by id.
func (f *FakeRemote) Rows(table string) []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]remote.Row, 0, len(f.tables[table]))
	for _, row := range f.tables[table] {
		rows = append(rows, copyRow(row))
	}
	sortRows(rows)
	return rows
}

func (f *FakeRemote) Select(_ context.Context, table string, filter remote.Filter) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "Select", Table: table})
	if f.offline {
		return nil, ErrInjected
	}
	if n := f.selects[table]; n > 0 {
		f.selects[table] = n - 1
		return nil, fmt.Errorf("select %s: %w", table, ErrInjected)
	}
	var rows []remote.Row
	for _, row := range f.tables[table] {
		if matches(row, filter) {
			rows = append(rows, copyRow(row))
		}
	}
	sortRows(rows)
	return rows, nil
}

func (f *FakeRemote) Upsert(_ context.Context, table string, row remote.Row) error {
	id, _ := row.ID()
	call := Call{Method: "Upsert", Table: table, ID: id, Row: copyRow(row)}
	return f.write(call, func() {
		f.table(table)[id] = copyRow(row)
	})
}

func (f *FakeRemote) Update(_ context.Context, table string, row remote.Row, matchID string) error {
	call := Call{Method: "Update", Table: table, ID: matchID, Row: copyRow(row)}
	return f.write(call, func() {
		existing, ok := f.table(table)[matchID]
		if !ok {
			return
		}
		for k, v := range row {
			if k != "id" {
				existing[k] = v
			}
		}
	})
}

func (f *FakeRemote) Delete(_ context.Context, table string, matchID string) error {
	call := Call{Method: "Delete", Table: table, ID: matchID}
	return f.write(call, func() {
		delete(f.table(table), matchID)
	})
}

func (f *FakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "Ping"})
	if f.offline {
		return ErrInjected
	}
	return nil
}

func (f *FakeRemote) write(call Call, apply func()) error {
	if hook := f.BeforeWrite; hook != nil {
		hook(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.offline {
		return ErrInjected
	}
	if n := f.failures[call.ID]; n > 0 {
		f.failures[call.ID] = n - 1
		return fmt.Errorf("%s %s %s: %w", call.Method, call.Table, call.ID, ErrInjected)
	}
	apply()
	return nil
}

func (f *FakeRemote) table(name string) map[string]remote.Row {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]remote.Row)
		f.tables[name] = t
	}
	return t
}

func matches(row remote.Row, filter remote.Filter) bool {
	for k, v := range filter {
		if fmt.Sprint(row[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func copyRow(row remote.Row) remote.Row {
	out := make(remote.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func sortRows(rows []remote.Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, _ := rows[i].ID()
		b, _ := rows[j].ID()
		return a < b
	})
}
