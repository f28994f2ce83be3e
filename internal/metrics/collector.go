package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "replication_worker"

// Batch kinds.
const (
	KindData     = "data"
	KindPosition = "position"
)

// Connect attempt results.
const (
	ResultConnected = "connected"
	ResultFailed    = "failed"
	ResultLost      = "lost"
)

// Collector is a prometheus.Collector for the replication worker.
type Collector struct {
	connectionState  *prometheus.GaugeVec
	connectAttempts  *prometheus.CounterVec
	backoffDelay     prometheus.Gauge
	batches          *prometheus.CounterVec
	rows             *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	notifications    *prometheus.CounterVec
	pushPokes        *prometheus.CounterVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		connectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "connection_state",
				Help:      "1 for the current state of the replication connection manager.",
			}, []string{"state"},
		),
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "connect_attempts_total",
				Help:      "Replication connection outcomes.",
			}, []string{"result"},
		),
		backoffDelay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "backoff_delay_seconds",
				Help:      "The delay that will precede the next reconnect attempt.",
			},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "Stream batches applied.",
			}, []string{"stream", "kind"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_total",
				Help:      "Stream rows applied.",
			}, []string{"stream"},
		),
		dispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_errors_total",
				Help:      "Batches whose processing failed.",
			}, []string{"stream"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time taken to apply one batch.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"stream"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "room_event_notifications_total",
				Help:      "Room events handed to the notifier.",
			}, []string{"delivery"},
		),
		pushPokes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "push_pokes_total",
				Help:      "Push gateway pokes by outcome.",
			}, []string{"result"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.connectionState.Describe(ch)
	c.connectAttempts.Describe(ch)
	c.backoffDelay.Describe(ch)
	c.batches.Describe(ch)
	c.rows.Describe(ch)
	c.dispatchErrors.Describe(ch)
	c.dispatchDuration.Describe(ch)
	c.notifications.Describe(ch)
	c.pushPokes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.connectionState.Collect(ch)
	c.connectAttempts.Collect(ch)
	c.backoffDelay.Collect(ch)
	c.batches.Collect(ch)
	c.rows.Collect(ch)
	c.dispatchErrors.Collect(ch)
	c.dispatchDuration.Collect(ch)
	c.notifications.Collect(ch)
	c.pushPokes.Collect(ch)
}

// SetConnectionState marks state as current and clears the previous one.
func (c *Collector) SetConnectionState(prev, state string) {
	if c == nil {
		return
	}
	if prev != "" {
		c.connectionState.WithLabelValues(prev).Set(0)
	}
	c.connectionState.WithLabelValues(state).Set(1)
}

// ConnectAttempt counts a connection outcome.
func (c *Collector) ConnectAttempt(result string) {
	if c == nil {
		return
	}
	c.connectAttempts.WithLabelValues(result).Inc()
}

// SetBackoffDelay records the next retry delay.
func (c *Collector) SetBackoffDelay(d time.Duration) {
	if c == nil {
		return
	}
	c.backoffDelay.Set(d.Seconds())
}

// ObserveBatch records one applied batch.
func (c *Collector) ObserveBatch(stream, kind string, rows int, took time.Duration, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.dispatchErrors.WithLabelValues(stream).Inc()
		return
	}
	c.batches.WithLabelValues(stream, kind).Inc()
	c.rows.WithLabelValues(stream).Add(float64(rows))
	c.dispatchDuration.WithLabelValues(stream).Observe(took.Seconds())
}

// RoomEventNotified counts a notification; delivery is "live" or "pending".
func (c *Collector) RoomEventNotified(delivery string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(delivery).Inc()
}

// PushPoke counts a push gateway call by result.
func (c *Collector) PushPoke(result string) {
	if c == nil {
		return
	}
	c.pushPokes.WithLabelValues(result).Inc()
}
