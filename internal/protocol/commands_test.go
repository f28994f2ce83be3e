package protocol

import (
	"errors"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantArgs string
	}{
		{line: "REPLICATE", wantName: "REPLICATE", wantArgs: ""},
		{line: "SERVER master.example.org", wantName: "SERVER", wantArgs: "master.example.org"},
		{line: `RDATA events master 5 ["ev", ["$a"]]`, wantName: "RDATA", wantArgs: `events master 5 ["ev", ["$a"]]`},
		{line: "  PING 123  ", wantName: "PING", wantArgs: "123"},
		{line: "", wantName: "", wantArgs: ""},
	}

	for _, tt := range tests {
		name, args := splitCommand(tt.line)
		if name != tt.wantName || args != tt.wantArgs {
			t.Errorf("splitCommand(%q) = %q, %q, want %q, %q", tt.line, name, args, tt.wantName, tt.wantArgs)
		}
	}
}

func TestParseRData(t *testing.T) {
	cmd, err := parseRData(`events master 42 ["ev", ["$a", "!r", "m.room.message", null]]`)
	if err != nil {
		t.Fatalf("parseRData() error: %v", err)
	}
	if cmd.stream != "events" || cmd.instance != "master" || cmd.token != 42 || cmd.batched {
		t.Errorf("parseRData() = %+v", cmd)
	}
	if string(cmd.row) != `["ev", ["$a", "!r", "m.room.message", null]]` {
		t.Errorf("row = %s", cmd.row)
	}

	cmd, err = parseRData(`typing master batch {"user_id":"@a:example.org"}`)
	if err != nil {
		t.Fatalf("parseRData() error: %v", err)
	}
	if !cmd.batched {
		t.Error("batched = false, want true")
	}
}

func TestParseRData_Errors(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{name: "too few", args: "events master 5"},
		{name: "bad token", args: "events master five {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRData(tt.args); !errors.Is(err, ErrMalformedCommand) {
				t.Errorf("parseRData(%q) error = %v, want ErrMalformedCommand", tt.args, err)
			}
		})
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		args      string
		wantToken int64
		wantErr   bool
	}{
		{args: "events master 17", wantToken: 17},
		{args: "events master 15 17", wantToken: 17},
		{args: "events master", wantErr: true},
		{args: "events master x", wantErr: true},
	}

	for _, tt := range tests {
		p, err := parsePosition(tt.args)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedCommand) {
				t.Errorf("parsePosition(%q) error = %v, want ErrMalformedCommand", tt.args, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePosition(%q) error: %v", tt.args, err)
			continue
		}
		if p.stream != "events" || p.instance != "master" || p.token != tt.wantToken {
			t.Errorf("parsePosition(%q) = %+v", tt.args, p)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := string(formatName("worker1")); got != "NAME worker1" {
		t.Errorf("formatName() = %q", got)
	}
	if got := string(formatPing(1700000000000)); got != "PING 1700000000000" {
		t.Errorf("formatPing() = %q", got)
	}
}
