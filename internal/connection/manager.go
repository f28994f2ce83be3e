package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/rickgao/replication-worker/internal/metrics"
)

// Manager holds at most one connection attempt or live connection to the
// coordinator and retries with backoff until shutdown.
type Manager struct {
	cfg      ManagerConfig
	dialer   Dialer
	factory  SessionFactory
	clock    clock.Clock
	recorder Recorder
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	backoff   *Backoff
	stopping  bool
	timer     clock.Timer // pending retry
	transport Transport   // live connection
	attempts  int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the clock used for retry timers.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager in the idle state.
func NewManager(cfg ManagerConfig, dialer Dialer, factory SessionFactory, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:     cfg,
		dialer:  dialer,
		factory: factory,
		clock:   clock.WallClock,
		logger:  slog.Default(),
		state:   StateIdle,
		backoff: NewBackoff(cfg.InitialDelay, cfg.MaxDelay, cfg.DelayFactor),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start makes the first connection attempt. When ctx is done the manager
// stops retrying and the live session is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		<-runCtx.Done()
		m.StopRetrying()
	}()

	m.StartConnecting()
	return nil
}

// Stop stops retrying, closes the live connection and waits for the
// connection goroutines, bounded by ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping replication connection manager")

	m.StopRetrying()

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	t := m.transport
	m.mu.Unlock()
	if t != nil {
		t.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("replication connection manager stopped")
	case <-ctx.Done():
		m.logger.Warn("replication connection manager stop timed out")
	}
	return nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Delay returns the delay that will precede the next retry.
func (m *Manager) Delay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backoff.Current()
}

// StartConnecting dials the coordinator. It does nothing before Start,
// once stopped, or while an attempt or connection exists. Failures are
// reported through OnConnectionFailed.
func (m *Manager) StartConnecting() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping || m.ctx == nil {
		return
	}
	if m.state != StateIdle && m.state != StateBackingOff {
		return
	}

	m.timer = nil
	m.attempts++
	m.setState(StateConnecting)
	m.logger.Info("connecting to replication",
		"address", m.cfg.Address,
		"attempt", m.attempts,
	)

	ctx := m.ctx
	m.wg.Add(1)
	go m.connect(ctx)
}

func (m *Manager) connect(ctx context.Context) {
	defer m.wg.Done()

	dialCtx := ctx
	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}

	t, err := m.dialer.Dial(dialCtx, m.cfg.Address)
	if err != nil {
		m.OnConnectionFailed(err)
		return
	}

	session := m.OnConnectionEstablished(t)
	if session == nil {
		t.Close()
		return
	}

	err = session.Run(ctx)
	t.Close()
	if err == nil || errors.Is(err, context.Canceled) {
		err = ErrTransportClosed
	}
	m.OnConnectionLost(err)
}

// OnConnectionEstablished records the live transport and builds its
// session. Returns nil if the manager was stopped meanwhile.
func (m *Manager) OnConnectionEstablished(t Transport) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		m.setState(StateStopped)
		return nil
	}

	info := SessionInfo{
		ConnID:     uuid.NewString(),
		ClientName: m.cfg.ClientName,
		ServerName: m.cfg.ServerName,
		Clock:      m.clock,
	}

	m.transport = t
	m.setState(StateConnected)
	m.record(metrics.ResultConnected)
	m.logger.Info("connected to replication",
		"address", m.cfg.Address,
		"remote", t.RemoteAddr(),
		"conn_id", info.ConnID,
	)

	return m.factory(t, info)
}

// OnConnectionLost schedules a retry after a live connection ended.
func (m *Manager) OnConnectionLost(reason error) {
	if m.isStopping() {
		m.logger.Info("replication connection closed", "address", m.cfg.Address, "reason", reason)
	} else {
		m.logger.Error("lost replication connection", "address", m.cfg.Address, "error", reason)
		m.record(metrics.ResultLost)
	}
	m.scheduleRetry()
}

// OnConnectionFailed schedules a retry after a failed dial.
func (m *Manager) OnConnectionFailed(reason error) {
	if m.isStopping() {
		m.logger.Info("replication connection attempt abandoned", "address", m.cfg.Address, "reason", reason)
	} else {
		m.logger.Error("failed to connect to replication", "address", m.cfg.Address, "error", reason)
		m.record(metrics.ResultFailed)
	}
	m.scheduleRetry()
}

func (m *Manager) isStopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// StopRetrying cancels any pending retry and prevents new ones. A live
// connection is left alone. Safe to call more than once.
func (m *Manager) StopRetrying() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return
	}
	m.stopping = true

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.state == StateIdle || m.state == StateBackingOff {
		m.setState(StateStopped)
	}
	m.logger.Info("stopped retrying replication connection")
}

func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport = nil
	if m.stopping {
		m.setState(StateStopped)
		return
	}

	delay := m.backoff.Next()
	m.setState(StateBackingOff)
	m.timer = m.clock.AfterFunc(delay, m.retry)

	if m.recorder != nil {
		m.recorder.SetBackoffDelay(m.backoff.Current())
	}
	m.logger.Info("retrying replication connection", "delay", delay)
}

// retry runs when the backoff timer fires.
func (m *Manager) retry() {
	m.mu.Lock()
	pending := !m.stopping && m.state == StateBackingOff
	m.mu.Unlock()

	if pending {
		m.StartConnecting()
	}
}

// setState moves to next. Caller holds mu.
func (m *Manager) setState(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	m.logger.Debug("replication connection state", "from", prev.String(), "to", next.String())
	if m.recorder != nil {
		m.recorder.SetConnectionState(prev.String(), next.String())
	}
}

func (m *Manager) record(result string) {
	if m.recorder != nil {
		m.recorder.ConnectAttempt(result)
	}
}
