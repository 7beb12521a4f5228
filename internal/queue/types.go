package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/model"
	"github.com/rickgao/salon-queue/internal/router"
)

// ErrClosed is returned by operations on a closed Coordinator.
var ErrClosed = errors.New("coordinator closed")

// LiveChannel is the subset of the Connection Manager the Coordinator drives.
type LiveChannel interface {
	Connect()
	ResetFallback()
	Subscribe(topic string, handler router.Handler) (router.Handle, error)
	Unsubscribe(h router.Handle) bool
	Status() connection.Status
	Watch() <-chan connection.Status
	Unwatch(ch <-chan connection.Status)
}

// Source pulls snapshots over REST.
type Source interface {
	GetQueue(ctx context.Context) ([]model.QueueEntry, error)
	GetQueueStats(ctx context.Context) (*model.QueueStats, error)
}

// SnapshotStore returns the last known-good view for a warm start.
// Load returns (nil, nil) when nothing is stored.
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Observer is told about view changes. Calls come from one goroutine, in
// order, and may skip intermediate views when the observer is slow.
type Observer interface {
	ViewUpdated(v View)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(View)

// ViewUpdated implements Observer.
func (f ObserverFunc) ViewUpdated(v View) { f(v) }

// Origin says which source produced the current entries.
type Origin string

const (
	OriginNone  Origin = ""
	OriginCache Origin = "cache"
	OriginPush  Origin = "push"
	OriginPull  Origin = "pull"
)

// Snapshot is the persisted part of a view.
type Snapshot struct {
	Entries []model.QueueEntry `json:"entries"`
	Stats   *model.QueueStats  `json:"stats,omitempty"`
	SavedAt time.Time          `json:"saved_at"`
}

// View is a consistent copy of the Coordinator's state.
type View struct {
	Entries       []model.QueueEntry `json:"entries"`
	Stats         *model.QueueStats  `json:"stats,omitempty"` // nil until available
	Status        connection.Status  `json:"status"`
	UsingFallback bool               `json:"using_fallback"`
	Loading       bool               `json:"loading"`
	LastError     string             `json:"last_error,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Source        Origin             `json:"source,omitempty"`
}

// Snapshot returns the persistable part of v.
func (v View) Snapshot() Snapshot {
	return Snapshot{
		Entries: model.CloneEntries(v.Entries),
		Stats:   model.CloneStats(v.Stats),
		SavedAt: v.UpdatedAt,
	}
}

// Config holds Coordinator configuration.
type Config struct {
	PollingInterval time.Duration // Fallback pull cadence
	RefreshTimeout  time.Duration // Per-pull deadline
	AutoStart       bool          // Call Connect on Start
	QueueTopic      string
	StatsTopic      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollingInterval: 10 * time.Second,
		RefreshTimeout:  10 * time.Second,
		AutoStart:       true,
		QueueTopic:      "/topic/queue",
		StatsTopic:      "/topic/queue/stats",
	}
}

// Refresh triggers, used for metrics and logs.
const (
	TriggerManual    = "manual"
	TriggerPoll      = "poll"
	TriggerConnected = "connected"
)
