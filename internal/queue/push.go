package queue

import (
	"time"

	"github.com/rickgao/salon-queue/internal/api"
	"github.com/rickgao/salon-queue/internal/metrics"
	"github.com/rickgao/salon-queue/internal/router"
)

// queueHandler applies queue snapshots for subscription round gen.
func (c *Coordinator) queueHandler(gen uint64) router.Handler {
	topic := c.cfg.QueueTopic
	return func(payload []byte) {
		entries, err := api.DecodeQueue(payload)
		if err != nil {
			c.logger.Warn("dropping malformed queue push", "topic", topic, "error", err)
			metrics.IncPush(topic, metrics.PushMalformed)
			return
		}

		c.mu.Lock()
		if c.closed || c.liveGen != gen {
			c.mu.Unlock()
			metrics.IncPush(topic, metrics.PushIgnored)
			return
		}
		c.queueSeq++
		c.entries = entries
		c.origin = OriginPush
		c.lastErr = ""
		c.updatedAt = time.Now()
		c.mu.Unlock()

		metrics.IncPush(topic, metrics.PushApplied)
		c.recordMetrics()
		c.publish()
	}
}

// statsHandler applies stats snapshots for subscription round gen.
func (c *Coordinator) statsHandler(gen uint64) router.Handler {
	topic := c.cfg.StatsTopic
	return func(payload []byte) {
		stats, err := api.DecodeStats(payload)
		if err != nil {
			c.logger.Warn("dropping malformed stats push", "topic", topic, "error", err)
			metrics.IncPush(topic, metrics.PushMalformed)
			return
		}

		c.mu.Lock()
		if c.closed || c.liveGen != gen {
			c.mu.Unlock()
			metrics.IncPush(topic, metrics.PushIgnored)
			return
		}
		c.statsSeq++
		c.stats = stats
		c.updatedAt = time.Now()
		c.mu.Unlock()

		metrics.IncPush(topic, metrics.PushApplied)
		c.recordMetrics()
		c.publish()
	}
}
