package streams

import (
	"encoding/json"
	"fmt"
)

// RowParser decodes a single JSON row for a stream.
type RowParser func(data []byte) (Row, error)

var parsers = map[string]RowParser{
	EventsStreamName: parseEventsRow,
}

// ParseRow decodes a row received for the given stream.
func ParseRow(stream string, data []byte) (Row, error) {
	if p, ok := parsers[stream]; ok {
		return p(data)
	}
	if !json.Valid(data) {
		return Row{}, fmt.Errorf("%w: invalid json for stream %s", ErrMalformedRow, stream)
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return Row{Data: raw}, nil
}

// parseEventsRow decodes ["ev", [...]] and ["state", [...]] tuples. Other
// row kinds are kept with their data undecoded.
func parseEventsRow(data []byte) (Row, error) {
	var wire []json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return Row{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(wire) != 2 {
		return Row{}, fmt.Errorf("%w: want [type, data], got %d elements", ErrMalformedRow, len(wire))
	}

	var typ string
	if err := json.Unmarshal(wire[0], &typ); err != nil {
		return Row{}, fmt.Errorf("%w: row type: %v", ErrMalformedRow, err)
	}

	if typ != EventRowType && typ != CurrentStateRowType {
		raw := make(json.RawMessage, len(wire[1]))
		copy(raw, wire[1])
		return Row{Type: typ, Data: raw}, nil
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(wire[1], &fields); err != nil {
		return Row{}, fmt.Errorf("%w: row data: %v", ErrMalformedRow, err)
	}

	if typ == EventRowType {
		row, err := parseEventRow(fields)
		if err != nil {
			return Row{}, err
		}
		return Row{Type: typ, Data: row}, nil
	}

	row, err := parseCurrentStateRow(fields)
	if err != nil {
		return Row{}, err
	}
	return Row{Type: typ, Data: row}, nil
}

// parseEventRow decodes (event_id, room_id, type, state_key, redacts,
// relates_to, membership, rejected, outlier). Trailing fields are optional.
func parseEventRow(fields []json.RawMessage) (*EventRow, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("%w: event row needs at least 4 fields, got %d", ErrMalformedRow, len(fields))
	}

	row := &EventRow{}
	targets := []any{
		&row.EventID,
		&row.RoomID,
		&row.Type,
		&row.StateKey,
		&row.Redacts,
		&row.RelatesTo,
		&row.Membership,
		&row.Rejected,
		&row.Outlier,
	}
	if err := decodeFields(fields, targets); err != nil {
		return nil, err
	}
	if row.EventID == "" {
		return nil, fmt.Errorf("%w: event row without event id", ErrMalformedRow)
	}
	return row, nil
}

// parseCurrentStateRow decodes (room_id, type, state_key, event_id).
func parseCurrentStateRow(fields []json.RawMessage) (*CurrentStateRow, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: state row needs at least 3 fields, got %d", ErrMalformedRow, len(fields))
	}

	row := &CurrentStateRow{}
	targets := []any{
		&row.RoomID,
		&row.Type,
		&row.StateKey,
		&row.EventID,
	}
	if err := decodeFields(fields, targets); err != nil {
		return nil, err
	}
	return row, nil
}

func decodeFields(fields []json.RawMessage, targets []any) error {
	for i, f := range fields {
		if i >= len(targets) {
			break
		}
		if err := json.Unmarshal(f, targets[i]); err != nil {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedRow, i, err)
		}
	}
	return nil
}
