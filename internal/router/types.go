package router

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrNoTopic        = errors.New("frame has no topic")
)

// Handle identifies one registered handler.
type Handle uuid.UUID

// NilHandle is the zero Handle; it is never issued.
var NilHandle Handle

// String returns the handle in canonical UUID form.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h == NilHandle
}

// Handler receives the raw payload of a frame. It runs on the connection's
// read goroutine and must not block.
type Handler func(payload []byte)

// Frame is the server -> client envelope.
type Frame struct {
	Topic string          `json:"topic"`
	Msg   json.RawMessage `json:"msg"`
}

// Stats contains runtime statistics.
type Stats struct {
	Received    int64 // Frames passed to Dispatch
	Routed      int64 // Frames delivered to at least one handler
	ParseErrors int64 // Frames that were not a valid envelope
	Unrouted    int64 // Frames for topics with no handler
	Panics      int64 // Handler panics recovered
	Handlers    int   // Currently registered handlers
	Topics      int   // Topics with at least one handler
}
