// worker follows a replication coordinator and turns its streams into
// local state, room event notifications and push nudges.
//
// Usage:
//
//	worker run --config configs/worker.example.yaml
//	worker version
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rickgao/replication-worker/internal/config"
	"github.com/rickgao/replication-worker/internal/version"
)

var (
	cfgFile string
	logger  *slog.Logger
	cfg     *config.WorkerConfig
)

// setupLogger builds the process logger from the logging config.
func setupLogger(w io.Writer, logCfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(logCfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch logCfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("logging.format must be text or json, got %q", logCfg.Format)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "worker",
		Short:         "Replication worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			cfg, err = config.LoadAndValidate(cfgFile)
			if err != nil {
				return err
			}

			logger, err = setupLogger(os.Stdout, cfg.Logging)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", envOr("REPLICATION_WORKER_CONFIG", "configs/worker.example.yaml"), "config file path (or set REPLICATION_WORKER_CONFIG)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
