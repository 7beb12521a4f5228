package connection

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrClosed          = errors.New("manager closed")
)

// Status is the live-channel status.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFallback     Status = "fallback"
)

// String returns the wire/log form of the status.
func (s Status) String() string {
	return string(s)
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Command is a WebSocket command to send to the server.
type Command struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params TopicParams `json:"params"`
}

// TopicParams are the parameters of subscribe and unsubscribe commands.
type TopicParams struct {
	Topic string `json:"topic"`
}

// Command names.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://salon.example.com/ws)
	Header           http.Header   // Extra handshake headers (Authorization)
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without pong/ping before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ClientFactory builds the transport for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	WSURL                string        // WebSocket URL
	MaxReconnectAttempts int           // Consecutive failures before fallback
	ReconnectBaseDelay   time.Duration // Backoff base
	ReconnectMaxDelay    time.Duration // Backoff ceiling
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	PingTimeout          time.Duration
	WriteTimeout         time.Duration
	BufferSize           int
	Debug                bool // Log every frame and transition detail
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	cc := DefaultClientConfig()
	return ManagerConfig{
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		HandshakeTimeout:     cc.HandshakeTimeout,
		PingInterval:         cc.PingInterval,
		PingTimeout:          cc.PingTimeout,
		WriteTimeout:         cc.WriteTimeout,
		BufferSize:           cc.BufferSize,
	}
}

// clientConfig derives the per-attempt transport config.
func (c ManagerConfig) clientConfig(header http.Header) ClientConfig {
	return ClientConfig{
		URL:              c.WSURL,
		Header:           header,
		HandshakeTimeout: c.HandshakeTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
		WriteTimeout:     c.WriteTimeout,
		BufferSize:       c.BufferSize,
	}
}
