package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rickgao/replication-worker/internal/config"
	"github.com/rickgao/replication-worker/internal/version"
)

// ErrCircuitOpen is returned while the gateway is considered down.
var ErrCircuitOpen = errors.New("push gateway circuit open")

// GatewayError is a non-2xx response from the push gateway.
type GatewayError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("push gateway error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *GatewayError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

type notifyRequest struct {
	FromToken int64 `json:"from_token"`
	ToToken   int64 `json:"to_token"`
}

// HTTPGateway pokes a push gateway over HTTP.
type HTTPGateway struct {
	url        string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger

	maxRetries       int
	retryBackoff     time.Duration
	failureThreshold uint32
	openTimeout      time.Duration
}

// GatewayOption configures an HTTPGateway.
type GatewayOption func(*HTTPGateway)

// NewHTTPGateway creates a gateway client posting to url.
func NewHTTPGateway(url, token string, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:          rate.NewLimiter(rate.Limit(50), 10),
		logger:           slog.Default(),
		maxRetries:       3,
		retryBackoff:     100 * time.Millisecond,
		failureThreshold: 5,
		openTimeout:      30 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push-gateway",
		MaxRequests: 1,
		Timeout:     g.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("push gateway circuit state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return g
}

// NewGateway returns the gateway for cfg: an HTTPGateway when push is
// enabled, otherwise a NoopGateway.
func NewGateway(cfg config.PushConfig, logger *slog.Logger) Gateway {
	if !cfg.Enabled {
		return NoopGateway{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return NewHTTPGateway(cfg.GatewayURL, cfg.Token,
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.MaxRetries, 100*time.Millisecond),
		WithRateLimit(cfg.RatePerSecond, cfg.Burst),
		WithLogger(logger),
	)
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		g.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		g.maxRetries = max
		g.retryBackoff = backoff
	}
}

// WithRateLimit caps pokes per second.
func WithRateLimit(perSecond float64, burst int) GatewayOption {
	return func(g *HTTPGateway) {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker sets how many consecutive failed pokes open the circuit and
// how long it stays open.
func WithBreaker(failures uint32, openFor time.Duration) GatewayOption {
	return func(g *HTTPGateway) {
		g.failureThreshold = failures
		g.openTimeout = openFor
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		g.httpClient = hc
	}
}

// Notify implements Gateway.
func (g *HTTPGateway) Notify(ctx context.Context, fromToken, toToken int64) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(notifyRequest{FromToken: fromToken, ToToken: toToken})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = g.breaker.Execute(func() (interface{}, error) {
		return nil, g.doWithRetry(ctx, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

// doRequest performs a single POST.
func (g *HTTPGateway) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &GatewayError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}
	return nil
}

// doWithRetry performs the POST with jittered exponential backoff.
func (g *HTTPGateway) doWithRetry(ctx context.Context, body []byte) error {
	var lastErr error
	backoff := g.retryBackoff

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			g.logger.Debug("retrying push poke",
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		err := g.doRequest(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err

		var gwErr *GatewayError
		if !errors.As(err, &gwErr) || !gwErr.IsRetryable() {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
