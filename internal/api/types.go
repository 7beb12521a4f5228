package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EntryID accepts both numeric and string ids.
type EntryID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("entry id: %w", err)
	}
	*id = EntryID(n.String())
	return nil
}

// QueueEntryDTO is one entry as the backend serializes it.
type QueueEntryDTO struct {
	ID                EntryID `json:"id"`
	CustomerName      string  `json:"customerName"`
	ServiceName       string  `json:"serviceName"`
	Status            string  `json:"status"`      // WAITING, IN_PROGRESS, COMPLETED, CANCELLED
	CheckInType       string  `json:"checkInType"` // ONLINE, IN_STORE
	EstimatedWaitTime *int    `json:"estimatedWaitTime"`
	CheckInTime       string  `json:"checkInTime"` // RFC 3339
	Priority          int     `json:"priority"`
}

// queueEnvelope is the wrapped form some deployments push: {"entries":[...]}.
type queueEnvelope struct {
	Entries *[]QueueEntryDTO `json:"entries"`
}

// QueueStatsDTO is the stats resource body.
type QueueStatsDTO struct {
	TotalWaiting    *int     `json:"totalWaiting"`
	AverageWaitTime *float64 `json:"averageWaitTime"`
	LongestWaitTime *int     `json:"longestWaitTime,omitempty"`
}
