package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks that all required fields are set and values are valid.
func (c *WorkerConfig) Validate() error {
	if c.Worker.Name == "" {
		return errors.New("worker.name is required")
	}
	if c.Worker.ServerName == "" {
		return errors.New("worker.server_name is required")
	}

	if err := c.Replication.validate("replication"); err != nil {
		return err
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Events.CacheSize < 1 {
		return errors.New("events.cache_size must be >= 1")
	}

	switch c.Notifier.Backend {
	case NotifierGoChannel:
	case NotifierAMQP:
		if c.Notifier.AMQPURL == "" {
			return errors.New("notifier.amqp_url is required for the amqp backend")
		}
	default:
		return fmt.Errorf("notifier.backend must be %q or %q, got %q", NotifierGoChannel, NotifierAMQP, c.Notifier.Backend)
	}

	if c.Push.Enabled {
		if c.Push.GatewayURL == "" {
			return errors.New("push.gateway_url is required when push is enabled")
		}
		if c.Push.RatePerSecond <= 0 {
			return errors.New("push.rate_per_second must be > 0")
		}
		if c.Push.Burst < 1 {
			return errors.New("push.burst must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (r *ReplicationConfig) validate(prefix string) error {
	if r.Address == "" {
		return fmt.Errorf("%s.address is required", prefix)
	}
	if r.InitialDelay <= 0 {
		return fmt.Errorf("%s.initial_delay must be > 0", prefix)
	}
	if r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("%s.max_delay (%s) cannot be less than initial_delay (%s)", prefix, r.MaxDelay, r.InitialDelay)
	}
	if r.DelayFactor < 1 {
		return fmt.Errorf("%s.delay_factor must be >= 1", prefix)
	}
	if r.PingInterval <= 0 {
		return fmt.Errorf("%s.ping_interval must be > 0", prefix)
	}
	if r.PingTimeout <= r.PingInterval {
		return fmt.Errorf("%s.ping_timeout (%s) must exceed ping_interval (%s)", prefix, r.PingTimeout, r.PingInterval)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLogLevel maps a config level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", level)
}
