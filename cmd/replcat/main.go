// replcat connects to a replication coordinator and prints every batch it
// receives. Nothing is written to the database.
//
// Usage:
//
//	go run ./cmd/replcat --config configs/worker.yaml
//	go run ./cmd/replcat --address tcp://localhost:9092 --name replcat --server-name example.com -v
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/replication-worker/internal/config"
	"github.com/rickgao/replication-worker/internal/connection"
	"github.com/rickgao/replication-worker/internal/dispatch"
	"github.com/rickgao/replication-worker/internal/protocol"
	"github.com/rickgao/replication-worker/internal/streams"
)

// printer is a DataHandler that writes batches to out.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	counts  map[string]int
}

var _ dispatch.DataHandler = (*printer)(nil)

func newPrinter(out io.Writer, verbose bool) *printer {
	return &printer{out: out, verbose: verbose, counts: make(map[string]int)}
}

func (p *printer) OnData(_ context.Context, stream, instance string, token int64, rows []streams.Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[stream] += len(rows)
	fmt.Fprintf(p.out, "[RDATA] %s instance=%s token=%d rows=%d\n", stream, instance, token, len(rows))
	for _, row := range rows {
		if ev, ok := row.EventRow(); ok {
			fmt.Fprintf(p.out, "  ev %s room=%s type=%s\n", ev.EventID, ev.RoomID, ev.Type)
		}
		if !p.verbose {
			continue
		}
		data, err := json.Marshal(row.Data)
		if err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
		fmt.Fprintf(p.out, "  %s %s\n", row.Type, data)
	}
	return nil
}

func (p *printer) OnPosition(_ context.Context, stream, instance string, token int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[POSITION] %s instance=%s token=%d\n", stream, instance, token)
	return nil
}

func (p *printer) OnRemoteServerUp(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[REMOTE_SERVER_UP] %s\n", server)
}

// summary returns rows received per stream.
func (p *printer) summary() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

type options struct {
	configPath string
	address    string
	name       string
	serverName string
	verbose    bool
}

// loadConfig reads the config file when given and applies flag overrides.
func loadConfig(opts options) (*config.WorkerConfig, error) {
	var cfg *config.WorkerConfig
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadWithDefaults(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.WorkerConfig{
			Replication: config.ReplicationConfig{
				InitialDelay: config.DefaultInitialDelay,
				MaxDelay:     config.DefaultMaxDelay,
				DelayFactor:  config.DefaultDelayFactor,
				DialTimeout:  config.DefaultDialTimeout,
				PingInterval: config.DefaultPingInterval,
				PingTimeout:  config.DefaultPingTimeout,
				WriteTimeout: config.DefaultWriteTimeout,
			},
		}
	}

	if opts.address != "" {
		cfg.Replication.Address = opts.address
	}
	if opts.name != "" {
		cfg.Worker.Name = opts.name
	}
	if opts.serverName != "" {
		cfg.Worker.ServerName = opts.serverName
	}

	if cfg.Replication.Address == "" {
		return nil, errors.New("replication.address is required")
	}
	if cfg.Worker.Name == "" {
		return nil, errors.New("worker.name is required")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.WorkerConfig, p *printer, logger *slog.Logger) error {
	sequencer := dispatch.NewSequencer(p, nil, logger)
	if err := sequencer.Start(ctx); err != nil {
		return err
	}

	factory := protocol.NewSessionFactory(sequencer, protocol.Config{
		PingInterval: cfg.Replication.PingInterval,
		PingTimeout:  cfg.Replication.PingTimeout,
	}, logger)

	manager := connection.NewManager(connection.ManagerConfig{
		Address:      cfg.Replication.Address,
		ClientName:   cfg.Worker.Name,
		ServerName:   cfg.Worker.ServerName,
		InitialDelay: cfg.Replication.InitialDelay,
		MaxDelay:     cfg.Replication.MaxDelay,
		DelayFactor:  cfg.Replication.DelayFactor,
		DialTimeout:  cfg.Replication.DialTimeout,
	}, &connection.NetDialer{WriteTimeout: cfg.Replication.WriteTimeout}, factory,
		connection.WithLogger(logger),
	)

	if err := manager.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(p.out, "Streaming from %s. Press Ctrl+C to stop.\n\n", cfg.Replication.Address)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.Stop(shutdownCtx)
	if err := sequencer.Stop(shutdownCtx); err != nil {
		return err
	}

	fmt.Fprintln(p.out, "\n=== Rows per stream ===")
	for stream, n := range p.summary() {
		fmt.Fprintf(p.out, "  %s: %d\n", stream, n)
	}
	return nil
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "replcat",
		Short:         "Print replication batches to stdout",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
			return run(cmd.Context(), cfg, newPrinter(cmd.OutOrStdout(), opts.verbose), logger)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&opts.address, "address", "", "coordinator address, overrides replication.address")
	cmd.Flags().StringVar(&opts.name, "name", "", "client name, overrides worker.name")
	cmd.Flags().StringVar(&opts.serverName, "server-name", "", "expected server name, overrides worker.server_name")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print every row payload")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
