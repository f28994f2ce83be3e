package config

import "time"

// WorkerConfig is the root configuration for a replication worker.
type WorkerConfig struct {
	Worker      WorkerIdentity    `yaml:"worker"`
	Replication ReplicationConfig `yaml:"replication"`
	Database    DBConfig          `yaml:"database"`
	Events      EventsConfig      `yaml:"events"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Push        PushConfig        `yaml:"push"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// WorkerIdentity names this worker and the deployment it belongs to.
type WorkerIdentity struct {
	Name       string `yaml:"name"`        // Client identity sent to the coordinator
	ServerName string `yaml:"server_name"` // Coordinator identity
}

// ReplicationConfig holds the coordinator link settings.
type ReplicationConfig struct {
	Address      string        `yaml:"address"` // tcp://host:port, host:port, ws:// or wss://
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	DelayFactor  float64       `yaml:"delay_factor"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// EventsConfig tunes event retrieval.
type EventsConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// NotifierConfig selects where room event notifications are published.
type NotifierConfig struct {
	Backend string `yaml:"backend"` // "gochannel" or "amqp"
	AMQPURL string `yaml:"amqp_url"`
	Topic   string `yaml:"topic"`
}

// PushConfig holds push gateway settings.
type PushConfig struct {
	Enabled       bool          `yaml:"enabled"`
	GatewayURL    string        `yaml:"gateway_url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
