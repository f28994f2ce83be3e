package streams

import (
	"encoding/json"
	"errors"
)

// Stream names.
const (
	EventsStreamName = "events"
)

// Row types carried on the events stream.
const (
	EventRowType        = "ev"
	CurrentStateRowType = "state"
)

// Errors
var (
	ErrMalformedRow = errors.New("malformed row")
)

// Row is one decoded replication row.
type Row struct {
	Type string // Row kind within the stream ("" for untyped streams)
	Data any    // *EventRow, *CurrentStateRow or json.RawMessage (untyped streams, other row kinds)
}

// Batch is one delivery unit: every row shares the token.
// Position is set only for POSITION commands; a data batch may carry no
// rows when none of them could be decoded.
type Batch struct {
	Stream   string
	Instance string
	Token    int64
	Rows     []Row
	Position bool
}

// IsPosition reports whether the batch only advances the stream position.
func (b Batch) IsPosition() bool {
	return b.Position
}

// EventRow announces a newly persisted event.
type EventRow struct {
	EventID    string
	RoomID     string
	Type       string
	StateKey   *string
	Redacts    *string
	RelatesTo  *string
	Membership *string
	Rejected   bool
	Outlier    bool
}

// CurrentStateRow announces a change to a room's current state.
// EventID is nil when the state entry was removed.
type CurrentStateRow struct {
	RoomID   string
	Type     string
	StateKey string
	EventID  *string
}

// RawRow returns the JSON payload of an untyped row.
func (r Row) RawRow() (json.RawMessage, bool) {
	raw, ok := r.Data.(json.RawMessage)
	return raw, ok
}

// EventRow returns the typed payload of an "ev" row.
func (r Row) EventRow() (*EventRow, bool) {
	if r.Type != EventRowType {
		return nil, false
	}
	ev, ok := r.Data.(*EventRow)
	return ev, ok
}
