package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRunning is returned by Start when the poller is already running.
var ErrRunning = errors.New("poller already running")

// FetchFunc performs one poll. The context carries the per-fetch timeout
// and is cancelled by Stop.
type FetchFunc func(ctx context.Context) error

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Delay between the end of one fetch and the start of the next (default: 10s)
	Timeout  time.Duration // Per-fetch timeout (default: 10s, 0 = none)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Polls        int64
	Errors       int64
	LastDuration time.Duration
	LastPollAt   time.Time
	Running      bool
}

// Poller repeatedly calls a FetchFunc. It can be started and stopped any
// number of times.
type Poller struct {
	cfg    Config
	fetch  FetchFunc
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	stats   Stats
}

// New creates a new Poller.
func New(cfg Config, fetch FetchFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:    cfg,
		fetch:  fetch,
		logger: logger,
	}
}

// Start begins the polling loop. The first fetch runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(runCtx, p.done)

	p.logger.Info("poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop cancels the loop and waits for it, including a fetch in flight.
// Stopping a stopped poller is a no-op.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	select {
	case <-done:
		p.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Running = p.running
	return s
}

// run is the main polling loop.
func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.pollOnce(ctx)
		timer.Reset(p.cfg.Interval)
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	fetchCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.fetch(fetchCtx)
	elapsed := time.Since(start)

	p.mu.Lock()
	p.stats.Polls++
	p.stats.LastDuration = elapsed
	p.stats.LastPollAt = start
	if err != nil && ctx.Err() == nil {
		p.stats.Errors++
	}
	p.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		p.logger.Warn("poll failed", "error", err, "duration", elapsed)
		return
	}
	p.logger.Debug("poll complete", "duration", elapsed)
}
