package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/salon-queue/internal/config"
	"github.com/rickgao/salon-queue/internal/queue"
)

// ErrNoClient is returned when the cache was built without a Redis client.
var ErrNoClient = errors.New("redis client is nil")

// saveTimeout bounds a save triggered by a view update.
const saveTimeout = 2 * time.Second

// NewClient creates a Redis client from configuration.
func NewClient(cfg config.CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// SnapshotCache stores one queue.Snapshot under a single key.
// It is a queue.SnapshotStore and a queue.Observer.
type SnapshotCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	lastSaved []byte // Entries and stats of the last successful save
}

// New creates a SnapshotCache. A zero ttl keeps the key forever.
func New(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *SnapshotCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With("component", "cache"),
	}
}

// Ping checks the Redis connection.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return ErrNoClient
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) when there is none.
func (c *SnapshotCache) Load(ctx context.Context) (*queue.Snapshot, error) {
	if c.client == nil {
		return nil, ErrNoClient
	}

	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap queue.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Drop it so the next start does not trip over it again.
		if cerr := c.clear(ctx); cerr != nil {
			c.logger.Warn("failed to remove corrupt snapshot", "error", cerr)
		}
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Save replaces the stored snapshot.
func (c *SnapshotCache) Save(ctx context.Context, snap queue.Snapshot) error {
	if c.client == nil {
		return ErrNoClient
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

func (c *SnapshotCache) clear(ctx context.Context) error {
	if c.client == nil {
		return ErrNoClient
	}
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// ViewUpdated saves views that came from the backend. Views still showing
// the cached copy, or nothing at all, are skipped, as are views whose
// entries and stats match the last save.
func (c *SnapshotCache) ViewUpdated(v queue.View) {
	switch v.Source {
	case queue.OriginPush, queue.OriginPull:
	default:
		return
	}

	content, err := json.Marshal(struct {
		Entries any
		Stats   any
	}{v.Entries, v.Stats})
	if err != nil {
		c.logger.Warn("failed to encode snapshot", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSaved != nil && bytes.Equal(c.lastSaved, content) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := c.Save(ctx, v.Snapshot()); err != nil {
		c.logger.Warn("failed to save snapshot", "error", err)
		return
	}
	c.lastSaved = content
	c.logger.Debug("snapshot saved", "entries", len(v.Entries), "source", v.Source)
}
