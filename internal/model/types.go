package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Entry status
// -----------------------------------------------------------------------------

// EntryStatus is the lifecycle state of a queue entry.
type EntryStatus string

const (
	StatusWaiting    EntryStatus = "waiting"
	StatusInProgress EntryStatus = "in-progress"
	StatusCompleted  EntryStatus = "completed"
	StatusCancelled  EntryStatus = "cancelled"
)

// ParseEntryStatus accepts the server spellings (WAITING, IN_PROGRESS, in-progress, ...).
func ParseEntryStatus(s string) (EntryStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")

	switch norm {
	case "waiting":
		return StatusWaiting, nil
	case "in-progress", "inprogress", "serving":
		return StatusInProgress, nil
	case "completed", "done":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown entry status %q", s)
}

// Active returns true while the customer is still in the salon's queue.
func (s EntryStatus) Active() bool {
	return s == StatusWaiting || s == StatusInProgress
}

// CheckInChannel is how the customer joined the queue. The UI groups entries by it.
type CheckInChannel string

const (
	ChannelOnline  CheckInChannel = "online"
	ChannelInStore CheckInChannel = "in-store"
)

// ParseCheckInChannel maps the server value; empty means a walk-in.
func ParseCheckInChannel(s string) (CheckInChannel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")

	switch norm {
	case "online", "app", "web":
		return ChannelOnline, nil
	case "", "in-store", "instore", "walk-in", "walkin":
		return ChannelInStore, nil
	}
	return "", fmt.Errorf("unknown check-in channel %q", s)
}

// -----------------------------------------------------------------------------
// Queue types
// -----------------------------------------------------------------------------

// QueueEntry is one row of the salon wait list.
type QueueEntry struct {
	ID            string         `json:"id"`
	CustomerName  string         `json:"customer_name"`
	ServiceName   string         `json:"service_name"`
	Status        EntryStatus    `json:"status"`
	Channel       CheckInChannel `json:"channel"`
	EstimatedWait int            `json:"estimated_wait"` // Minutes
	CheckedInAt   time.Time      `json:"checked_in_at"`
	Priority      int            `json:"priority"` // Lower is served first
}

// QueueStats is the aggregate view of the queue.
type QueueStats struct {
	TotalWaiting int     `json:"total_waiting"`
	AverageWait  float64 `json:"average_wait"`           // Minutes
	LongestWait  *int    `json:"longest_wait,omitempty"` // Minutes, nil if not reported
}

// SortEntries orders entries by ascending priority, then check-in time, then ID.
func SortEntries(entries []QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CheckedInAt.Equal(b.CheckedInAt) {
			return a.CheckedInAt.Before(b.CheckedInAt)
		}
		return a.ID < b.ID
	})
}

// CloneEntries returns a copy that does not alias the input.
func CloneEntries(entries []QueueEntry) []QueueEntry {
	if entries == nil {
		return nil
	}
	out := make([]QueueEntry, len(entries))
	copy(out, entries)
	return out
}

// CloneStats returns a deep copy of s, or nil.
func CloneStats(s *QueueStats) *QueueStats {
	if s == nil {
		return nil
	}
	out := *s
	if s.LongestWait != nil {
		v := *s.LongestWait
		out.LongestWait = &v
	}
	return &out
}
