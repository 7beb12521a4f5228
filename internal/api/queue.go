package api

import (
	"context"
	"fmt"

	"github.com/rickgao/salon-queue/internal/model"
)

// GetQueue fetches the current wait list.
func (c *Client) GetQueue(ctx context.Context) ([]model.QueueEntry, error) {
	body, err := c.get(ctx, "/queue")
	if err != nil {
		return nil, fmt.Errorf("get queue: %w", err)
	}
	return DecodeQueue(body)
}

// GetQueueStats fetches aggregate queue stats. Callers without staff
// privileges get an APIError for which IsUnauthorized is true.
func (c *Client) GetQueueStats(ctx context.Context) (*model.QueueStats, error) {
	body, err := c.get(ctx, "/queue/stats")
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return DecodeStats(body)
}
