package localstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smith3v/word-sync/pkg/db"
)

// Action is the kind of mutation a queued change replays.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction accepts exactly the three known kinds.
func ParseAction(value string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(value)))
	if err := action.Validate(); err != nil {
		return "", err
	}
	return action, nil
}

func (a Action) Validate() error {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
	}
}

// Change is a drained (or freshly enqueued) queue entry with its payload
// decoded. Payload is nil when the stored snapshot could not be decoded.
type Change struct {
	ID        int64
	Table     string
	Action    Action
	Payload   map[string]any
	Raw       json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

// PayloadID returns the record identifier embedded in the snapshot.
func (c Change) PayloadID() (string, bool) {
	if c.Payload == nil {
		return "", false
	}
	switch id := c.Payload["id"].(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		return fmt.Sprintf("%.0f", id), true
	default:
		return "", false
	}
}

// RecordKey identifies the logical record a change touches, for ordering.
func (c Change) RecordKey() string {
	id, _ := c.PayloadID()
	return c.Table + "/" + id
}

func encodePayload(payload any) (json.RawMessage, error) {
	var raw []byte
	switch p := payload.(type) {
	case nil:
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidPayload)
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		raw = encoded
	}
	if _, err := decodePayload(raw); err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// decodePayload keeps numbers as json.Number so identifiers survive the
// round trip unchanged.
func decodePayload(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}
	return out, nil
}

func changeFromRow(row db.QueuedChange) Change {
	change := Change{
		ID:        row.ID,
		Table:     row.Table,
		Action:    Action(row.Action),
		Raw:       json.RawMessage(row.Payload),
		CreatedAt: row.CreatedAt,
		Attempts:  row.Attempts,
	}
	if payload, err := decodePayload(row.Payload); err == nil {
		change.Payload = payload
	}
	return change
}

// recordIDs collects the payload ids of changes to table.
func recordIDs(changes []Change, table string) map[string]bool {
	ids := make(map[string]bool)
	for _, change := range changes {
		if change.Table != table {
			continue
		}
		if id, ok := change.PayloadID(); ok {
			ids[id] = true
		}
	}
	return ids
}
