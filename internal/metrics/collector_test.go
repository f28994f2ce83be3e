package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gather registers c and returns metric values keyed by name and label values.
func gather(t *testing.T, c *Collector) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollector_ConnectionState(t *testing.T) {
	c := NewCollector()
	c.SetConnectionState("", "connecting")
	c.SetConnectionState("connecting", "connected")
	c.ConnectAttempt(ResultConnected)
	c.SetBackoffDelay(250 * time.Millisecond)

	got := gather(t, c)

	if v := got["replication_worker_connection_state/connected"]; v != 1 {
		t.Errorf("connected state = %v, want 1", v)
	}
	if v := got["replication_worker_connection_state/connecting"]; v != 0 {
		t.Errorf("connecting state = %v, want 0", v)
	}
	if v := got["replication_worker_connect_attempts_total/connected"]; v != 1 {
		t.Errorf("connect attempts = %v, want 1", v)
	}
	if v := got["replication_worker_backoff_delay_seconds"]; v != 0.25 {
		t.Errorf("backoff delay = %v, want 0.25", v)
	}
}

func TestCollector_ObserveBatch(t *testing.T) {
	c := NewCollector()
	c.ObserveBatch("events", KindData, 3, 10*time.Millisecond, nil)
	c.ObserveBatch("events", KindPosition, 0, time.Millisecond, nil)
	c.ObserveBatch("events", KindData, 2, time.Millisecond, errors.New("boom"))

	got := gather(t, c)

	if v := got["replication_worker_batches_total/data/events"]; v != 1 {
		t.Errorf("data batches = %v, want 1", v)
	}
	if v := got["replication_worker_batches_total/position/events"]; v != 1 {
		t.Errorf("position batches = %v, want 1", v)
	}
	if v := got["replication_worker_rows_total/events"]; v != 3 {
		t.Errorf("rows = %v, want 3", v)
	}
	if v := got["replication_worker_dispatch_errors_total/events"]; v != 1 {
		t.Errorf("dispatch errors = %v, want 1", v)
	}
	if v := got["replication_worker_dispatch_duration_seconds/events"]; v != 2 {
		t.Errorf("duration samples = %v, want 2", v)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.SetConnectionState("", "connecting")
	c.ConnectAttempt(ResultFailed)
	c.SetBackoffDelay(time.Second)
	c.ObserveBatch("events", KindData, 1, time.Millisecond, nil)
	c.RoomEventNotified("live")
	c.PushPoke("ok")
}
