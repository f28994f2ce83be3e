package config

import (
	"math"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultInitialDelay   = 100 * time.Millisecond
	DefaultMaxDelay       = 1 * time.Second
	DefaultDelayFactor    = math.E
	DefaultDialTimeout    = 10 * time.Second
	DefaultPingInterval   = 5 * time.Second
	DefaultPingTimeout    = 25 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultEventCacheSize = 10000
	DefaultNotifier       = NotifierGoChannel
	DefaultNotifierTopic  = "room_events"
	DefaultPushTimeout    = 10 * time.Second
	DefaultPushMaxRetries = 3
	DefaultPushRate       = 50
	DefaultPushBurst      = 10
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Notifier backends.
const (
	NotifierGoChannel = "gochannel"
	NotifierAMQP      = "amqp"
)

func (c *WorkerConfig) applyDefaults() {
	// Replication defaults
	if c.Replication.InitialDelay == 0 {
		c.Replication.InitialDelay = DefaultInitialDelay
	}
	if c.Replication.MaxDelay == 0 {
		c.Replication.MaxDelay = DefaultMaxDelay
	}
	if c.Replication.DelayFactor == 0 {
		c.Replication.DelayFactor = DefaultDelayFactor
	}
	if c.Replication.DialTimeout == 0 {
		c.Replication.DialTimeout = DefaultDialTimeout
	}
	if c.Replication.PingInterval == 0 {
		c.Replication.PingInterval = DefaultPingInterval
	}
	if c.Replication.PingTimeout == 0 {
		c.Replication.PingTimeout = DefaultPingTimeout
	}
	if c.Replication.WriteTimeout == 0 {
		c.Replication.WriteTimeout = DefaultWriteTimeout
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	if c.Events.CacheSize == 0 {
		c.Events.CacheSize = DefaultEventCacheSize
	}

	// Notifier defaults
	if c.Notifier.Backend == "" {
		c.Notifier.Backend = DefaultNotifier
	}
	if c.Notifier.Topic == "" {
		c.Notifier.Topic = DefaultNotifierTopic
	}

	// Push defaults
	if c.Push.Timeout == 0 {
		c.Push.Timeout = DefaultPushTimeout
	}
	if c.Push.MaxRetries == 0 {
		c.Push.MaxRetries = DefaultPushMaxRetries
	}
	if c.Push.RatePerSecond == 0 {
		c.Push.RatePerSecond = DefaultPushRate
	}
	if c.Push.Burst == 0 {
		c.Push.Burst = DefaultPushBurst
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
