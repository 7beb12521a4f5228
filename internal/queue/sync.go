package queue

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/salon-queue/internal/api"
	"github.com/rickgao/salon-queue/internal/metrics"
	"github.com/rickgao/salon-queue/internal/model"
)

// Refresh pulls both resources once, whatever the current mode. It returns
// the queue error, if any; stats failures are never returned.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.pull(ctx, TriggerManual)
}

func (c *Coordinator) pollFetch(ctx context.Context) error {
	return c.pull(ctx, TriggerPoll)
}

// pull fetches queue and stats concurrently and applies them. Each half is
// applied only if no push for it arrived while the pull was in flight.
func (c *Coordinator) pull(ctx context.Context, trigger string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	queueSeq, statsSeq := c.queueSeq, c.statsSeq
	c.loading++
	c.mu.Unlock()
	c.publish()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RefreshTimeout)
	defer cancel()

	start := time.Now()
	var (
		entries  []model.QueueEntry
		stats    *model.QueueStats
		statsErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := c.source.GetQueue(gctx)
		if err != nil {
			return err
		}
		entries = e
		return nil
	})
	g.Go(func() error {
		// Stats are optional; never fail the group.
		stats, statsErr = c.source.GetQueueStats(gctx)
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	c.loading--
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("discarding pull result after close", "trigger", trigger)
		return ErrClosed
	}
	if err != nil && errors.Is(err, context.Canceled) && parent.Err() != nil {
		// Abandoned by a mode switch, not a backend failure.
		c.mu.Unlock()
		c.logger.Debug("pull cancelled", "trigger", trigger)
		c.publish()
		return err
	}

	now := time.Now()
	switch {
	case statsErr != nil:
		// Stay as we were: absent for unprivileged callers.
	case c.statsSeq != statsSeq:
		c.logger.Debug("stats pushed during pull, keeping push", "trigger", trigger)
	case stats != nil:
		c.stats = stats
		c.updatedAt = now
	}

	if err != nil {
		c.lastErr = err.Error()
	} else {
		c.lastErr = ""
		if c.queueSeq == queueSeq {
			model.SortEntries(entries)
			c.entries = entries
			c.origin = OriginPull
			c.updatedAt = now
		} else {
			c.logger.Debug("queue pushed during pull, keeping push", "trigger", trigger)
		}
	}
	c.mu.Unlock()

	c.logPull(trigger, err, statsErr, time.Since(start))
	metrics.IncRefresh(trigger, err == nil)
	c.recordMetrics()
	c.publish()
	return err
}

func (c *Coordinator) logPull(trigger string, err, statsErr error, elapsed time.Duration) {
	if statsErr != nil {
		if api.IsUnauthorized(statsErr) {
			c.logger.Debug("queue stats not permitted for this caller", "trigger", trigger)
		} else {
			c.logger.Warn("queue stats pull failed", "trigger", trigger, "error", statsErr)
		}
	}
	if err != nil {
		c.logger.Warn("queue pull failed", "trigger", trigger, "error", err, "duration", elapsed)
		return
	}
	c.logger.Debug("queue pulled", "trigger", trigger, "duration", elapsed)
}
