package config

import "time"

// Config is the root configuration for a front-desk client.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Queue      QueueConfig      `yaml:"queue"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	History    HistoryConfig    `yaml:"history"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// InstanceConfig identifies this front desk.
type InstanceConfig struct {
	ID     string `yaml:"id"`
	Salon  string `yaml:"salon"`
	Device string `yaml:"device"`
}

// APIConfig holds backend REST and WebSocket settings.
type APIConfig struct {
	RestURL      string        `yaml:"rest_url"`
	WSURL        string        `yaml:"ws_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"` // 0 = unlimited
	RateBurst    int           `yaml:"rate_burst"`
}

// AuthConfig describes where the bearer token comes from.
type AuthConfig struct {
	Token      string        `yaml:"token"`      // Usually ${SALON_ACCESS_TOKEN}
	TokenFile  string        `yaml:"token_file"` // Read at startup if Token is empty
	ExpirySkew time.Duration `yaml:"expiry_skew"`
}

// ConnectionConfig holds Connection Manager settings.
type ConnectionConfig struct {
	AutoConnect          bool          `yaml:"auto_connect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// QueueConfig holds Queue Subscription Coordinator settings.
type QueueConfig struct {
	AutoStart       bool          `yaml:"auto_start"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	RefreshTimeout  time.Duration `yaml:"refresh_timeout"`
	QueueTopic      string        `yaml:"queue_topic"`
	StatsTopic      string        `yaml:"stats_topic"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout or stderr
	Debug  bool   `yaml:"debug"`  // Verbose connection/queue logging, overrides Level
}

// CacheConfig holds the Redis last-known-good snapshot cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// HistoryConfig holds the queue stats history writer.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
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

// MetricsConfig holds the health and Prometheus server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
