package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command names.
const (
	CmdName           = "NAME"
	CmdReplicate      = "REPLICATE"
	CmdPing           = "PING"
	CmdServer         = "SERVER"
	CmdRData          = "RDATA"
	CmdPosition       = "POSITION"
	CmdRemoteServerUp = "REMOTE_SERVER_UP"
	CmdError          = "ERROR"
)

// batchToken marks an RDATA row that is followed by more rows of the
// same batch.
const batchToken = "batch"

// ErrMalformedCommand is returned for commands whose arguments do not parse.
var ErrMalformedCommand = errors.New("malformed command")

// splitCommand separates the command name from its arguments.
func splitCommand(line string) (name, args string) {
	name, args, _ = strings.Cut(strings.TrimSpace(line), " ")
	return name, args
}

// rdata is a parsed RDATA command.
type rdata struct {
	stream   string
	instance string
	token    int64
	batched  bool // token was "batch"
	row      []byte
}

func parseRData(args string) (rdata, error) {
	parts := strings.SplitN(args, " ", 4)
	if len(parts) != 4 {
		return rdata{}, fmt.Errorf("%w: RDATA needs 4 arguments, got %d", ErrMalformedCommand, len(parts))
	}

	cmd := rdata{
		stream:   parts[0],
		instance: parts[1],
		row:      []byte(parts[3]),
	}
	if parts[2] == batchToken {
		cmd.batched = true
		return cmd, nil
	}

	token, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return rdata{}, fmt.Errorf("%w: RDATA token %q", ErrMalformedCommand, parts[2])
	}
	cmd.token = token
	return cmd, nil
}

// position is a parsed POSITION command.
type position struct {
	stream   string
	instance string
	token    int64
}

// parsePosition accepts "<stream> <instance> <token>" and the newer
// "<stream> <instance> <prev_token> <token>".
func parsePosition(args string) (position, error) {
	parts := strings.Fields(args)
	if len(parts) != 3 && len(parts) != 4 {
		return position{}, fmt.Errorf("%w: POSITION needs 3 or 4 arguments, got %d", ErrMalformedCommand, len(parts))
	}

	raw := parts[len(parts)-1]
	token, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return position{}, fmt.Errorf("%w: POSITION token %q", ErrMalformedCommand, raw)
	}
	return position{stream: parts[0], instance: parts[1], token: token}, nil
}

func formatName(client string) []byte {
	return []byte(CmdName + " " + client)
}

func formatPing(unixMillis int64) []byte {
	return []byte(CmdPing + " " + strconv.FormatInt(unixMillis, 10))
}
