package push

import (
	"context"
	"log/slog"
	"sync"
)

// Poke results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Gateway delivers a notification range to the push service.
type Gateway interface {
	Notify(ctx context.Context, fromToken, toToken int64) error
}

// Recorder receives poke outcomes.
type Recorder interface {
	PushPoke(result string)
}

// Pool tracks how far push processing has been nudged.
type Pool struct {
	gateway  Gateway
	recorder Recorder
	logger   *slog.Logger

	mu        sync.Mutex
	lastToken int64
}

// NewPool creates a Pool. recorder may be nil.
func NewPool(gateway Gateway, recorder Recorder, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		gateway:  gateway,
		recorder: recorder,
		logger:   logger,
	}
}

// OnNewNotifications tells pushers that events in (fromToken, toToken] may
// need sending.
func (p *Pool) OnNewNotifications(ctx context.Context, fromToken, toToken int64) error {
	if err := p.gateway.Notify(ctx, fromToken, toToken); err != nil {
		p.record(ResultError)
		p.logger.Warn("push poke failed",
			"from_token", fromToken,
			"to_token", toToken,
			"error", err,
		)
		return err
	}

	p.mu.Lock()
	if toToken > p.lastToken {
		p.lastToken = toToken
	}
	p.mu.Unlock()

	p.record(ResultOK)
	return nil
}

// LastToken returns the highest token successfully poked.
func (p *Pool) LastToken() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastToken
}

func (p *Pool) record(result string) {
	if p.recorder != nil {
		p.recorder.PushPoke(result)
	}
}

// NoopGateway accepts every poke. Used when push is disabled.
type NoopGateway struct{}

// Notify implements Gateway.
func (NoopGateway) Notify(context.Context, int64, int64) error { return nil }
