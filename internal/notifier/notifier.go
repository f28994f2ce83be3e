package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rickgao/replication-worker/internal/model"
)

// Delivery labels.
const (
	DeliveryLive    = "live"
	DeliveryPending = "pending"
)

// RoomEventNotification is the published payload.
type RoomEventNotification struct {
	EventID    string   `json:"event_id"`
	RoomID     string   `json:"room_id"`
	Type       string   `json:"type"`
	StateKey   *string  `json:"state_key,omitempty"`
	Sender     string   `json:"sender"`
	Token      int64    `json:"token"`
	ExtraUsers []string `json:"extra_users,omitempty"`
}

// Recorder receives notification counts.
type Recorder interface {
	RoomEventNotified(delivery string)
}

type pendingEvent struct {
	event      *model.Event
	token      int64
	extraUsers []string
}

// Notifier publishes room events to a watermill topic.
type Notifier struct {
	publisher message.Publisher
	topic     string
	recorder  Recorder
	logger    *slog.Logger

	mu      sync.Mutex
	pending []pendingEvent
}

// New creates a Notifier. recorder may be nil.
func New(publisher message.Publisher, topic string, recorder Recorder, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		publisher: publisher,
		topic:     topic,
		recorder:  recorder,
		logger:    logger,
	}
}

// OnNewRoomEvent announces event at token. If the room stream has not yet
// reached token, the event is held until a later call with a maxToken that
// covers it.
func (n *Notifier) OnNewRoomEvent(ctx context.Context, event *model.Event, token, maxToken int64, extraUsers []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if token > maxToken {
		n.pending = append(n.pending, pendingEvent{event: event, token: token, extraUsers: extraUsers})
		n.record(DeliveryPending)
		n.logger.Debug("holding room event",
			"event_id", event.EventID,
			"token", token,
			"max_token", maxToken,
		)
		return nil
	}

	if err := n.flushPending(ctx, maxToken); err != nil {
		return err
	}
	return n.publish(ctx, event, token, extraUsers)
}

// Pending returns the number of events held back.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// flushPending publishes held events covered by maxToken. Caller holds mu.
func (n *Notifier) flushPending(ctx context.Context, maxToken int64) error {
	if len(n.pending) == 0 {
		return nil
	}

	remaining := n.pending[:0]
	var failed error
	for _, p := range n.pending {
		if failed != nil || p.token > maxToken {
			remaining = append(remaining, p)
			continue
		}
		if err := n.publish(ctx, p.event, p.token, p.extraUsers); err != nil {
			failed = err
			remaining = append(remaining, p)
		}
	}
	n.pending = remaining
	return failed
}

func (n *Notifier) publish(ctx context.Context, event *model.Event, token int64, extraUsers []string) error {
	payload, err := json.Marshal(RoomEventNotification{
		EventID:    event.EventID,
		RoomID:     event.RoomID,
		Type:       event.Type,
		StateKey:   event.StateKey,
		Sender:     event.Sender,
		Token:      token,
		ExtraUsers: extraUsers,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("room_id", event.RoomID)

	if err := n.publisher.Publish(n.topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", n.topic, err)
	}
	n.record(DeliveryLive)
	return nil
}

func (n *Notifier) record(delivery string) {
	if n.recorder != nil {
		n.recorder.RoomEventNotified(delivery)
	}
}
