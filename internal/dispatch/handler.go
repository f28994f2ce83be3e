package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	jujuerrors "github.com/juju/errors"

	"github.com/rickgao/replication-worker/internal/model"
	"github.com/rickgao/replication-worker/internal/streams"
)

// Store persists replicated rows and reads events back.
type Store interface {
	ProcessReplicationRows(ctx context.Context, stream, instance string, token int64, rows []streams.Row) error
	GetEvent(ctx context.Context, eventID string, allowRejected bool) (*model.Event, error)
	GetRoomMaxStreamOrdering(ctx context.Context) (int64, error)
}

// Notifier announces new room events.
type Notifier interface {
	OnNewRoomEvent(ctx context.Context, event *model.Event, token, maxToken int64, extraUsers []string) error
}

// PusherPool is nudged once per events batch.
type PusherPool interface {
	OnNewNotifications(ctx context.Context, fromToken, toToken int64) error
}

// DataHandler receives the commands of a replication connection.
type DataHandler interface {
	OnData(ctx context.Context, stream, instance string, token int64, rows []streams.Row) error
	OnPosition(ctx context.Context, stream, instance string, token int64) error
	OnRemoteServerUp(server string)
}

// Handler is the worker's DataHandler.
type Handler struct {
	store    Store
	notifier Notifier
	pusher   PusherPool
	logger   *slog.Logger

	onRemoteServerUp func(server string)
}

var _ DataHandler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithRemoteServerUp sets a hook run when the coordinator reports that a
// remote server came back.
func WithRemoteServerUp(fn func(server string)) Option {
	return func(h *Handler) {
		h.onRemoteServerUp = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler.
func NewHandler(store Store, notifier Notifier, pusher PusherPool, opts ...Option) *Handler {
	h := &Handler{
		store:    store,
		notifier: notifier,
		pusher:   pusher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnData writes rows to the store, then for the events stream notifies
// every accepted "ev" row and nudges the pusher pool once.
func (h *Handler) OnData(ctx context.Context, stream, instance string, token int64, rows []streams.Row) error {
	if err := h.store.ProcessReplicationRows(ctx, stream, instance, token, rows); err != nil {
		return fmt.Errorf("process %s rows at %d: %w", stream, token, err)
	}

	if stream != streams.EventsStreamName {
		return nil
	}

	for _, row := range rows {
		ev, ok := row.EventRow()
		if !ok {
			continue
		}
		if err := h.notifyEvent(ctx, ev.EventID, token); err != nil {
			return err
		}
	}

	if err := h.pusher.OnNewNotifications(ctx, token, token); err != nil {
		return fmt.Errorf("notify pushers at %d: %w", token, err)
	}
	return nil
}

func (h *Handler) notifyEvent(ctx context.Context, eventID string, token int64) error {
	event, err := h.store.GetEvent(ctx, eventID, true)
	if jujuerrors.Is(err, jujuerrors.NotFound) {
		h.logger.Debug("replicated event not found", "event_id", eventID, "token", token)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get event %s: %w", eventID, err)
	}
	if event.IsRejected() {
		return nil
	}

	var extraUsers []string
	if target, ok := event.MembershipTarget(); ok {
		extraUsers = []string{target}
	}

	maxToken, err := h.store.GetRoomMaxStreamOrdering(ctx)
	if err != nil {
		return fmt.Errorf("get room max stream ordering: %w", err)
	}

	if err := h.notifier.OnNewRoomEvent(ctx, event, token, maxToken, extraUsers); err != nil {
		return fmt.Errorf("notify event %s: %w", eventID, err)
	}
	return nil
}

// OnPosition advances the stream without deriving anything.
func (h *Handler) OnPosition(ctx context.Context, stream, instance string, token int64) error {
	if err := h.store.ProcessReplicationRows(ctx, stream, instance, token, []streams.Row{}); err != nil {
		return fmt.Errorf("process %s position %d: %w", stream, token, err)
	}
	return nil
}

// OnRemoteServerUp runs the configured hook, if any.
func (h *Handler) OnRemoteServerUp(server string) {
	if h.onRemoteServerUp != nil {
		h.onRemoteServerUp(server)
	}
}
