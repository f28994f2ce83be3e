package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/replication-worker/internal/metrics"
	"github.com/rickgao/replication-worker/internal/streams"
)

// ErrSequencerStopped is returned by Submit after Stop.
var ErrSequencerStopped = errors.New("sequencer stopped")

// Recorder receives per-batch outcomes.
type Recorder interface {
	ObserveBatch(stream, kind string, rows int, took time.Duration, err error)
}

// StreamError is a batch that the DataHandler failed to apply.
type StreamError struct {
	Stream string
	Token  int64
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s at %d: %v", e.Stream, e.Token, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

type laneItem struct {
	batch streams.Batch
	epoch uint64
}

// Sequencer feeds batches to a DataHandler, one lane per stream.
type Sequencer struct {
	handler  DataHandler
	recorder Recorder
	logger   *slog.Logger

	// Handler calls run on a context that outlives cancellation so a batch
	// is never abandoned half-applied.
	ctx context.Context

	mu          sync.Mutex
	lanes       map[string]*queue[laneItem]
	epoch       uint64
	failedEpoch uint64 // 0 = no failure
	stopped     bool

	errs chan error
	wg   sync.WaitGroup
}

// NewSequencer creates a Sequencer. recorder may be nil.
func NewSequencer(handler DataHandler, recorder Recorder, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		handler:  handler,
		recorder: recorder,
		logger:   logger,
		ctx:      context.Background(),
		lanes:    make(map[string]*queue[laneItem]),
		epoch:    1,
		errs:     make(chan error, 1),
	}
}

// Start sets the parent context for handler calls. Its values are kept,
// its cancellation is not.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = context.WithoutCancel(ctx)
	return nil
}

// Reset begins a new connection epoch. Batches submitted before a failure
// in the previous epoch are discarded; later submissions are applied.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	select {
	case <-s.errs:
	default:
	}
}

// Submit queues a batch on its stream's lane.
func (s *Sequencer) Submit(batch streams.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSequencerStopped
	}

	lane, ok := s.lanes[batch.Stream]
	if !ok {
		lane = newQueue[laneItem](16)
		s.lanes[batch.Stream] = lane
		s.wg.Add(1)
		go s.runLane(batch.Stream, lane)
	}
	lane.Push(laneItem{batch: batch, epoch: s.epoch})
	return nil
}

// RemoteServerUp forwards to the handler immediately.
func (s *Sequencer) RemoteServerUp(server string) {
	s.handler.OnRemoteServerUp(server)
}

// Errors reports the first failure of the current epoch.
func (s *Sequencer) Errors() <-chan error {
	return s.errs
}

// Pending returns the number of queued batches across all lanes.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, lane := range s.lanes {
		n += lane.Len()
	}
	return n
}

// Stop closes every lane and waits for queued batches to be applied.
func (s *Sequencer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, lane := range s.lanes {
		lane.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sequencer stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sequencer stop timed out", "pending", s.Pending())
		return ctx.Err()
	}
}

func (s *Sequencer) runLane(stream string, lane *queue[laneItem]) {
	defer s.wg.Done()

	for {
		item, ok := lane.Pop()
		if !ok {
			return
		}
		s.apply(stream, item)
	}
}

func (s *Sequencer) apply(stream string, item laneItem) {
	s.mu.Lock()
	skip := item.epoch == s.failedEpoch
	ctx := s.ctx
	s.mu.Unlock()

	b := item.batch
	if skip {
		s.logger.Debug("discarding batch after stream failure",
			"stream", stream,
			"token", b.Token,
		)
		return
	}

	start := time.Now()
	var err error
	kind := metrics.KindData
	if b.IsPosition() {
		kind = metrics.KindPosition
		err = s.handler.OnPosition(ctx, b.Stream, b.Instance, b.Token)
	} else {
		err = s.handler.OnData(ctx, b.Stream, b.Instance, b.Token, b.Rows)
	}
	if s.recorder != nil {
		s.recorder.ObserveBatch(stream, kind, len(b.Rows), time.Since(start), err)
	}
	if err == nil {
		return
	}

	s.logger.Error("failed to apply replication batch",
		"stream", stream,
		"instance", b.Instance,
		"token", b.Token,
		"rows", len(b.Rows),
		"error", err,
	)

	s.mu.Lock()
	s.failedEpoch = item.epoch
	current := item.epoch == s.epoch
	s.mu.Unlock()

	if !current {
		return
	}
	select {
	case s.errs <- &StreamError{Stream: stream, Token: b.Token, Err: err}:
	default:
	}
}
