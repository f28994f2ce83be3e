package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/errors"

	"github.com/rickgao/replication-worker/internal/model"
	"github.com/rickgao/replication-worker/internal/streams"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config holds store settings.
type Config struct {
	CacheSize int // Events kept in the LRU cache
}

// Store persists stream positions and serves events.
type Store struct {
	db     DB
	cache  *lru.Cache[string, *model.Event]
	logger *slog.Logger

	mu        sync.RWMutex
	positions map[string]int64 // stream -> highest token applied
}

// New creates a Store.
func New(db DB, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *model.Event](cfg.CacheSize)
	if err != nil {
		return nil, errors.Annotate(err, "create event cache")
	}
	return &Store{
		db:        db,
		cache:     cache,
		logger:    logger,
		positions: make(map[string]int64),
	}, nil
}

// EnsureSchema creates the positions table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createPositionsTable); err != nil {
		return errors.Annotate(err, "create replication_stream_positions")
	}
	return nil
}

// LoadPositions seeds the in-memory tracker from the database.
func (s *Store) LoadPositions(ctx context.Context) error {
	rows, err := s.db.Query(ctx, selectPositions)
	if err != nil {
		return errors.Annotate(err, "query stream positions")
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var stream, instance string
		var token int64
		if err := rows.Scan(&stream, &instance, &token); err != nil {
			return errors.Annotate(err, "scan stream position")
		}
		if token > s.positions[stream] {
			s.positions[stream] = token
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Annotate(err, "read stream positions")
	}

	s.logger.Info("loaded stream positions", "streams", len(s.positions))
	return nil
}

// ProcessReplicationRows records that the stream has reached token and
// invalidates cached events the rows touch. rows may be empty.
func (s *Store) ProcessReplicationRows(ctx context.Context, stream, instance string, token int64, rows []streams.Row) error {
	if stream == streams.EventsStreamName {
		for _, row := range rows {
			ev, ok := row.EventRow()
			if !ok {
				continue
			}
			s.cache.Remove(ev.EventID)
			if ev.Redacts != nil {
				s.cache.Remove(*ev.Redacts)
			}
		}
	}

	if _, err := s.db.Exec(ctx, upsertPosition, stream, instance, token); err != nil {
		return errors.Annotatef(err, "advance %s/%s to %d", stream, instance, token)
	}

	s.mu.Lock()
	if token > s.positions[stream] {
		s.positions[stream] = token
	}
	s.mu.Unlock()

	s.logger.Debug("applied replication rows",
		"stream", stream,
		"instance", instance,
		"token", token,
		"rows", len(rows),
	)
	return nil
}

// GetEvent returns the event with the given id. Missing events, and rejected
// ones unless allowRejected is set, satisfy errors.Is(err, errors.NotFound).
func (s *Store) GetEvent(ctx context.Context, eventID string, allowRejected bool) (*model.Event, error) {
	ev, ok := s.cache.Get(eventID)
	if !ok {
		var err error
		ev, err = s.fetchEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}
		s.cache.Add(eventID, ev)
	}

	if ev.IsRejected() && !allowRejected {
		return nil, errors.NotFoundf("event %s", eventID)
	}
	return ev, nil
}

func (s *Store) fetchEvent(ctx context.Context, eventID string) (*model.Event, error) {
	var (
		ev      model.Event
		content *string
	)
	err := s.db.QueryRow(ctx, selectEvent, eventID).Scan(
		&ev.EventID,
		&ev.RoomID,
		&ev.Type,
		&ev.StateKey,
		&ev.Sender,
		&ev.StreamOrdering,
		&ev.RejectedReason,
		&content,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFoundf("event %s", eventID)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "get event %s", eventID)
	}
	if content != nil {
		ev.Content = json.RawMessage(*content)
	}
	return &ev, nil
}

// GetRoomMaxStreamOrdering returns the highest events-stream token applied.
func (s *Store) GetRoomMaxStreamOrdering(ctx context.Context) (int64, error) {
	return s.Position(streams.EventsStreamName), nil
}

// Position returns the highest token applied for stream.
func (s *Store) Position(stream string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[stream]
}

// CachedEvents returns the number of events in the cache.
func (s *Store) CachedEvents() int {
	return s.cache.Len()
}
