package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/replication-worker/internal/connection"
	"github.com/rickgao/replication-worker/internal/streams"
)

// ErrPingTimeout ends a session that has heard nothing for too long.
var ErrPingTimeout = errors.New("replication ping timeout")

// Handler consumes the batches a session assembles.
type Handler interface {
	// Submit queues a batch. A batch without rows is a position update.
	Submit(batch streams.Batch) error

	RemoteServerUp(server string)

	// Errors reports failures applying submitted batches.
	Errors() <-chan error

	// Reset is called when a new session starts.
	Reset()
}

// Config holds session settings.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// NewSessionFactory returns a factory building sessions that feed h.
func NewSessionFactory(h Handler, cfg Config, logger *slog.Logger) connection.SessionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(t connection.Transport, info connection.SessionInfo) connection.Session {
		return &session{
			transport: t,
			info:      info,
			handler:   h,
			cfg:       cfg,
			logger:    logger.With("conn_id", info.ConnID),
			pending:   make(map[string][]streams.Row),
		}
	}
}

type readResult struct {
	line []byte
	err  error
}

type session struct {
	transport connection.Transport
	info      connection.SessionInfo
	handler   Handler
	cfg       Config
	logger    *slog.Logger

	pending  map[string][]streams.Row // stream -> rows of an open batch
	lastRecv time.Time
}

// Run identifies the worker, requests replication and processes commands
// until the connection fails, ctx is done, or a batch cannot be applied.
func (s *session) Run(ctx context.Context) error {
	s.handler.Reset()
	clk := s.info.Clock

	if err := s.transport.WriteLine(formatName(s.info.ClientName)); err != nil {
		return fmt.Errorf("send NAME: %w", err)
	}
	if err := s.transport.WriteLine([]byte(CmdReplicate)); err != nil {
		return fmt.Errorf("send REPLICATE: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	reads := make(chan readResult)
	go s.readLoop(reads, done)

	s.lastRecv = clk.Now()
	ping := clk.NewTimer(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-reads:
			if r.err != nil {
				return fmt.Errorf("read: %w", r.err)
			}
			s.lastRecv = clk.Now()
			if err := s.handleLine(string(r.line)); err != nil {
				return err
			}

		case err := <-s.handler.Errors():
			return fmt.Errorf("apply batch: %w", err)

		case <-ping.Chan():
			if idle := clk.Now().Sub(s.lastRecv); idle > s.cfg.PingTimeout {
				s.logger.Warn("replication connection idle", "idle", idle, "timeout", s.cfg.PingTimeout)
				return ErrPingTimeout
			}
			if err := s.transport.WriteLine(formatPing(clk.Now().UnixMilli())); err != nil {
				return fmt.Errorf("send PING: %w", err)
			}
			ping.Reset(s.cfg.PingInterval)
		}
	}
}

func (s *session) readLoop(out chan<- readResult, done <-chan struct{}) {
	for {
		line, err := s.transport.ReadLine()
		select {
		case out <- readResult{line: line, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// handleLine processes one inbound command. Only failures to hand a batch
// to the handler end the session.
func (s *session) handleLine(line string) error {
	name, args := splitCommand(line)

	switch name {
	case "":
		return nil

	case CmdServer:
		s.logger.Info("replication server identified", "server", args)
		if s.info.ServerName != "" && args != s.info.ServerName {
			s.logger.Warn("replication server name mismatch",
				"expected", s.info.ServerName,
				"got", args,
			)
		}

	case CmdRData:
		return s.handleRData(args)

	case CmdPosition:
		return s.handlePosition(args)

	case CmdRemoteServerUp:
		s.handler.RemoteServerUp(args)

	case CmdPing:
		// liveness only

	case CmdError:
		s.logger.Error("replication server error", "message", args)

	default:
		s.logger.Debug("ignoring unknown replication command", "command", name)
	}
	return nil
}

func (s *session) handleRData(args string) error {
	cmd, err := parseRData(args)
	if err != nil {
		s.logger.Warn("ignoring malformed RDATA", "error", err)
		return nil
	}

	row, err := streams.ParseRow(cmd.stream, cmd.row)
	if err != nil {
		s.logger.Warn("ignoring unparseable row",
			"stream", cmd.stream,
			"error", err,
		)
	} else {
		s.pending[cmd.stream] = append(s.pending[cmd.stream], row)
	}

	if cmd.batched {
		return nil
	}

	rows := s.pending[cmd.stream]
	delete(s.pending, cmd.stream)
	if rows == nil {
		rows = []streams.Row{}
	}
	return s.submit(streams.Batch{
		Stream:   cmd.stream,
		Instance: cmd.instance,
		Token:    cmd.token,
		Rows:     rows,
	})
}

func (s *session) handlePosition(args string) error {
	cmd, err := parsePosition(args)
	if err != nil {
		s.logger.Warn("ignoring malformed POSITION", "error", err)
		return nil
	}

	if rows := s.pending[cmd.stream]; len(rows) > 0 {
		s.logger.Warn("discarding incomplete batch",
			"stream", cmd.stream,
			"rows", len(rows),
		)
		delete(s.pending, cmd.stream)
	}

	return s.submit(streams.Batch{
		Stream:   cmd.stream,
		Instance: cmd.instance,
		Token:    cmd.token,
		Position: true,
	})
}

func (s *session) submit(b streams.Batch) error {
	if err := s.handler.Submit(b); err != nil {
		return fmt.Errorf("submit %s batch at %d: %w", b.Stream, b.Token, err)
	}
	return nil
}
