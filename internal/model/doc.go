// Package model defines the queue data types shared across the front-desk client.
//
// Conventions:
//   - Wait times: minutes, as reported by the server
//   - Timestamps: time.Time in UTC
//   - IDs: opaque strings assigned by the server
//   - Ordering: SortEntries is the one canonical queue order
package model
