package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "http://localhost:8080/api"
	DefaultWSURL                = "ws://localhost:8080/ws"
	DefaultAPITimeout           = 10 * time.Second
	DefaultMaxRetries           = 2
	DefaultRetryBackoff         = 500 * time.Millisecond
	DefaultRateBurst            = 5
	DefaultExpirySkew           = 30 * time.Second
	DefaultMaxReconnectAttempts = 3
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 60 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 256
	DefaultPollingInterval      = 10 * time.Second
	DefaultRefreshTimeout       = 10 * time.Second
	DefaultQueueTopic           = "/topic/queue"
	DefaultStatsTopic           = "/topic/queue/stats"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultCacheAddress         = "localhost:6379"
	DefaultCacheKey             = "salon:queue:snapshot"
	DefaultCacheTTL             = 24 * time.Hour
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultHistoryBatchSize     = 50
	DefaultHistoryFlush         = 30 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}

	// Auth defaults
	if c.Auth.ExpirySkew == 0 {
		c.Auth.ExpirySkew = DefaultExpirySkew
	}

	// Connection defaults
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Queue defaults
	if c.Queue.PollingInterval == 0 {
		c.Queue.PollingInterval = DefaultPollingInterval
	}
	if c.Queue.RefreshTimeout == 0 {
		c.Queue.RefreshTimeout = DefaultRefreshTimeout
	}
	if c.Queue.QueueTopic == "" {
		c.Queue.QueueTopic = DefaultQueueTopic
	}
	if c.Queue.StatsTopic == "" {
		c.Queue.StatsTopic = DefaultStatsTopic
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Cache defaults
	if c.Cache.Address == "" {
		c.Cache.Address = DefaultCacheAddress
	}
	if c.Cache.Key == "" {
		c.Cache.Key = DefaultCacheKey
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	// History defaults
	applyDBDefaults(&c.History.Database)
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultHistoryBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultHistoryFlush
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
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
