package model

import "encoding/json"

// Event types the worker derives side effects from.
const (
	EventTypeMember    = "m.room.member"
	EventTypeRedaction = "m.room.redaction"
)

// Event is a persisted room event as read back from the store.
type Event struct {
	EventID        string
	RoomID         string
	Type           string
	StateKey       *string // nil for non-state events
	Sender         string
	StreamOrdering int64
	RejectedReason string          // Empty unless the event was rejected
	Content        json.RawMessage // Full event JSON, may be nil
}

// IsState reports whether the event carries a state key.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// IsRejected reports whether the event was rejected during auth checks.
func (e *Event) IsRejected() bool {
	return e.RejectedReason != ""
}

// MembershipTarget returns the user a membership event applies to.
// The second value is false for events that are not membership changes.
func (e *Event) MembershipTarget() (string, bool) {
	if e.Type != EventTypeMember || e.StateKey == nil {
		return "", false
	}
	return *e.StateKey, true
}
