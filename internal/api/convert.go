package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/salon-queue/internal/model"
)

// Decode errors.
var (
	ErrNotQueueSnapshot = errors.New("payload is not a queue snapshot")
	ErrNotStatsSnapshot = errors.New("payload is not a stats snapshot")
)

// ParseTimestamp parses an ISO 8601 timestamp. Timestamps without a zone are
// taken as UTC.
func ParseTimestamp(iso string) (time.Time, error) {
	if iso == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05.999999999", iso)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", iso, err)
		}
	}

	return t.UTC(), nil
}

// ToQueueEntry converts a wire entry to the domain model.
func (d QueueEntryDTO) ToQueueEntry() (model.QueueEntry, error) {
	if d.ID == "" {
		return model.QueueEntry{}, errors.New("entry without id")
	}

	status, err := model.ParseEntryStatus(d.Status)
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("entry %s: %w", d.ID, err)
	}
	channel, err := model.ParseCheckInChannel(d.CheckInType)
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("entry %s: %w", d.ID, err)
	}

	var checkedIn time.Time
	if d.CheckInTime != "" {
		checkedIn, err = ParseTimestamp(d.CheckInTime)
		if err != nil {
			return model.QueueEntry{}, fmt.Errorf("entry %s: %w", d.ID, err)
		}
	}

	wait := 0
	if d.EstimatedWaitTime != nil {
		wait = *d.EstimatedWaitTime
	}

	return model.QueueEntry{
		ID:            string(d.ID),
		CustomerName:  d.CustomerName,
		ServiceName:   d.ServiceName,
		Status:        status,
		Channel:       channel,
		EstimatedWait: wait,
		CheckedInAt:   checkedIn,
		Priority:      d.Priority,
	}, nil
}

// DecodeQueue parses a full queue snapshot, either a bare array or
// {"entries":[...]}. The result is in canonical order. Any bad entry fails the
// whole snapshot so a partial list never replaces a good view.
func DecodeQueue(data []byte) ([]model.QueueEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNotQueueSnapshot
	}

	var dtos []QueueEntryDTO
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &dtos); err != nil {
			return nil, fmt.Errorf("decode queue: %w", err)
		}
	case '{':
		var env queueEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode queue: %w", err)
		}
		if env.Entries == nil {
			return nil, ErrNotQueueSnapshot
		}
		dtos = *env.Entries
	default:
		return nil, ErrNotQueueSnapshot
	}

	entries := make([]model.QueueEntry, 0, len(dtos))
	for _, d := range dtos {
		e, err := d.ToQueueEntry()
		if err != nil {
			return nil, fmt.Errorf("decode queue: %w", err)
		}
		entries = append(entries, e)
	}

	model.SortEntries(entries)
	return entries, nil
}

// DecodeStats parses a stats snapshot. totalWaiting and averageWaitTime are required.
func DecodeStats(data []byte) (*model.QueueStats, error) {
	var dto QueueStatsDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return dto.ToQueueStats()
}

// ToQueueStats converts the wire stats to the domain model.
func (d QueueStatsDTO) ToQueueStats() (*model.QueueStats, error) {
	if d.TotalWaiting == nil || d.AverageWaitTime == nil {
		return nil, ErrNotStatsSnapshot
	}

	stats := &model.QueueStats{
		TotalWaiting: *d.TotalWaiting,
		AverageWait:  *d.AverageWaitTime,
	}
	if d.LongestWaitTime != nil {
		v := *d.LongestWaitTime
		stats.LongestWait = &v
	}
	return stats, nil
}
