package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/salon-queue/internal/connection"
	"github.com/rickgao/salon-queue/internal/metrics"
	"github.com/rickgao/salon-queue/internal/model"
	"github.com/rickgao/salon-queue/internal/poller"
	"github.com/rickgao/salon-queue/internal/router"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSnapshotStore seeds the view from store on Start.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithObserver adds an observer of view changes.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, o)
	}
}

// Coordinator reconciles push and poll into one queue view.
type Coordinator struct {
	cfg       Config
	live      LiveChannel
	source    Source
	store     SnapshotStore
	observers []Observer
	logger    *slog.Logger
	poller    *poller.Poller

	// modeMu serializes source switches, RetryWebSocket and Close.
	modeMu  sync.Mutex
	handles []router.Handle

	mu         sync.Mutex
	entries    []model.QueueEntry
	stats      *model.QueueStats
	status     connection.Status
	loading    int // Pulls in flight
	lastErr    string
	updatedAt  time.Time
	origin     Origin
	queueSeq   uint64 // Applied queue pushes
	statsSeq   uint64 // Applied stats pushes
	subGen     uint64 // Bumped per subscription round
	liveGen    uint64 // subGen of the active round, 0 when none
	liveActive bool
	started    bool
	closed     bool

	watch  <-chan connection.Status
	notify chan View
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	nwg    sync.WaitGroup
}

// New creates a Coordinator. Nothing runs until Start.
func New(cfg Config, live LiveChannel, source Source, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = def.PollingInterval
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = def.RefreshTimeout
	}
	if cfg.QueueTopic == "" {
		cfg.QueueTopic = def.QueueTopic
	}
	if cfg.StatsTopic == "" {
		cfg.StatsTopic = def.StatsTopic
	}

	c := &Coordinator{
		cfg:    cfg,
		live:   live,
		source: source,
		logger: logger.With("component", "queue"),
		status: connection.StatusDisconnected,
		notify: make(chan View, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.poller = poller.New(poller.Config{Interval: cfg.PollingInterval}, c.pollFetch, c.logger)
	return c
}

// Start warm-starts the view, follows the live channel's status and, with
// AutoStart, asks it to connect.
func (c *Coordinator) Start(ctx context.Context) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	if len(c.observers) > 0 {
		c.nwg.Add(1)
		go c.notifyLoop()
	}

	c.warmStart(ctx)

	// The first value on the watch channel is the current status, which
	// puts us in the matching mode.
	c.watch = c.live.Watch()
	c.wg.Add(1)
	go c.run()

	if c.cfg.AutoStart {
		c.live.Connect()
	}

	c.logger.Info("queue coordinator started",
		"polling_interval", c.cfg.PollingInterval,
		"auto_start", c.cfg.AutoStart,
	)
	return nil
}

func (c *Coordinator) warmStart(ctx context.Context) {
	if c.store == nil {
		return
	}

	snap, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Warn("failed to load cached snapshot", "error", err)
		return
	}
	if snap == nil {
		return
	}

	entries := model.CloneEntries(snap.Entries)
	model.SortEntries(entries)

	c.mu.Lock()
	// Anything already applied is fresher than the cache.
	if c.origin == OriginNone {
		c.entries = entries
		c.stats = model.CloneStats(snap.Stats)
		c.updatedAt = snap.SavedAt
		c.origin = OriginCache
	}
	c.mu.Unlock()

	c.logger.Info("view seeded from cache", "entries", len(entries), "saved_at", snap.SavedAt)
	c.publish()
}

// run applies every observed status.
func (c *Coordinator) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case s, ok := <-c.watch:
			if !ok {
				return
			}
			c.reconcile(s)
		}
	}
}

// reconcile switches source for status s.
func (c *Coordinator) reconcile(s connection.Status) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev := c.status
	c.status = s
	c.mu.Unlock()
	c.publish()

	c.logger.Debug("reconciling mode", "from", prev, "to", s)

	switch s {
	case connection.StatusConnected:
		c.enterLive()
	case connection.StatusFallback:
		c.enterFallback()
	}
}

// enterLive stops polling, subscribes both topics and pulls once to cover
// the gap before the first push. Caller holds modeMu.
func (c *Coordinator) enterLive() {
	if err := c.poller.Stop(context.Background()); err != nil {
		c.logger.Warn("failed to stop poller", "error", err)
	}
	c.releaseSubscriptions()

	c.mu.Lock()
	c.subGen++
	gen := c.subGen
	c.liveGen = gen
	c.liveActive = true
	c.mu.Unlock()

	hq, err := c.live.Subscribe(c.cfg.QueueTopic, c.queueHandler(gen))
	if err != nil {
		// Status moved on; the next reconcile picks the right mode.
		c.logger.Warn("subscribe failed", "topic", c.cfg.QueueTopic, "error", err)
		c.releaseSubscriptions()
		return
	}
	c.handles = append(c.handles, hq)

	hs, err := c.live.Subscribe(c.cfg.StatsTopic, c.statsHandler(gen))
	if err != nil {
		c.logger.Warn("subscribe failed", "topic", c.cfg.StatsTopic, "error", err)
		c.releaseSubscriptions()
		return
	}
	c.handles = append(c.handles, hs)

	c.logger.Info("live mode", "topics", []string{c.cfg.QueueTopic, c.cfg.StatsTopic})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pull(c.ctx, TriggerConnected)
	}()
}

// enterFallback drops subscriptions and starts polling. Caller holds modeMu.
func (c *Coordinator) enterFallback() {
	c.releaseSubscriptions()

	if err := c.poller.Start(c.ctx); err != nil && !errors.Is(err, poller.ErrRunning) {
		c.logger.Error("failed to start poller", "error", err)
		return
	}
	c.logger.Info("fallback mode, polling", "interval", c.cfg.PollingInterval)
}

// releaseSubscriptions invalidates handlers first so no frame is applied
// after this returns. Caller holds modeMu.
func (c *Coordinator) releaseSubscriptions() {
	c.mu.Lock()
	c.liveGen = 0
	c.liveActive = false
	c.mu.Unlock()

	for _, h := range c.handles {
		c.live.Unsubscribe(h)
	}
	c.handles = c.handles[:0]
}

// RetryWebSocket stops polling and gives the live channel another chance.
func (c *Coordinator) RetryWebSocket(ctx context.Context) error {
	c.modeMu.Lock()
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.modeMu.Unlock()
		return ErrClosed
	}
	err := c.poller.Stop(ctx)
	c.modeMu.Unlock()
	if err != nil {
		return err
	}

	c.logger.Info("retrying live channel")
	c.live.ResetFallback()
	return nil
}

// LiveActive reports whether topic subscriptions are held.
func (c *Coordinator) LiveActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveActive
}

// PollingActive reports whether the fallback poller is running.
func (c *Coordinator) PollingActive() bool {
	return c.poller.Running()
}

// Mode returns LiveActive and PollingActive sampled at one instant.
func (c *Coordinator) Mode() (live, polling bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveActive, c.poller.Running()
}

// PollerStats exposes the fallback poller's counters.
func (c *Coordinator) PollerStats() poller.Stats {
	return c.poller.Stats()
}

// View returns a copy of the current state.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Coordinator) viewLocked() View {
	return View{
		Entries:       model.CloneEntries(c.entries),
		Stats:         model.CloneStats(c.stats),
		Status:        c.status,
		UsingFallback: c.status == connection.StatusFallback,
		Loading:       c.loading > 0,
		LastError:     c.lastErr,
		UpdatedAt:     c.updatedAt,
		Source:        c.origin,
	}
}

// Close stops following the live channel, stops polling, releases
// subscriptions and waits for background work. Pulls that resolve later are
// discarded.
func (c *Coordinator) Close(ctx context.Context) error {
	c.modeMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.modeMu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	if !started {
		c.modeMu.Unlock()
		return nil
	}

	c.live.Unwatch(c.watch)
	c.cancel()
	stopErr := c.poller.Stop(ctx)
	c.releaseSubscriptions()
	c.modeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(c.notify)
		c.nwg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("queue coordinator stopped")
		return stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish hands the current view to the notify loop, replacing any view it
// has not picked up yet.
func (c *Coordinator) publish() {
	if len(c.observers) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	v := c.viewLocked()
	select {
	case <-c.notify:
	default:
	}
	c.notify <- v
}

func (c *Coordinator) notifyLoop() {
	defer c.nwg.Done()
	for v := range c.notify {
		for _, o := range c.observers {
			o.ViewUpdated(v)
		}
	}
}

func (c *Coordinator) recordMetrics() {
	c.mu.Lock()
	n := len(c.entries)
	var avg float64
	if c.stats != nil {
		avg = c.stats.AverageWait
	}
	c.mu.Unlock()

	metrics.SetQueueLength(n)
	metrics.SetAverageWait(avg)
}
