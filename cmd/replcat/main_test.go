package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rickgao/replication-worker/internal/config"
	"github.com/rickgao/replication-worker/internal/streams"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, true)
	ctx := context.Background()

	rows := []streams.Row{
		{Type: streams.EventRowType, Data: &streams.EventRow{EventID: "$e1", RoomID: "!r:x", Type: "m.room.message"}},
	}
	if err := p.OnData(ctx, "events", "master", 7, rows); err != nil {
		t.Fatalf("OnData() error = %v", err)
	}
	if err := p.OnData(ctx, "typing", "master", 3, []streams.Row{{Data: json.RawMessage(`["!r:x",["@a:x"]]`)}}); err != nil {
		t.Fatalf("OnData() error = %v", err)
	}
	if err := p.OnPosition(ctx, "events", "master", 9); err != nil {
		t.Fatalf("OnPosition() error = %v", err)
	}
	p.OnRemoteServerUp("other.example.com")

	out := buf.String()
	for _, want := range []string{
		"[RDATA] events instance=master token=7 rows=1",
		"ev $e1 room=!r:x type=m.room.message",
		`["!r:x",["@a:x"]]`,
		"[POSITION] events instance=master token=9",
		"[REMOTE_SERVER_UP] other.example.com",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	got := p.summary()
	if got["events"] != 1 || got["typing"] != 1 {
		t.Errorf("summary() = %v", got)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		wantErr string
	}{
		{"flags only", options{address: "tcp://localhost:9092", name: "replcat"}, ""},
		{"missing address", options{name: "replcat"}, "replication.address is required"},
		{"missing name", options{address: "tcp://localhost:9092"}, "worker.name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(tt.opts)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("loadConfig() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig() error = %v", err)
			}
			if cfg.Replication.InitialDelay != config.DefaultInitialDelay {
				t.Errorf("InitialDelay = %v, want %v", cfg.Replication.InitialDelay, config.DefaultInitialDelay)
			}
			if cfg.Replication.Address != tt.opts.address {
				t.Errorf("Address = %q, want %q", cfg.Replication.Address, tt.opts.address)
			}
		})
	}
}
