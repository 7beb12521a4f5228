// Package queue implements the Queue Subscription Coordinator.
//
// The Coordinator:
//   - Keeps one queue view fed either by push topics or by REST polling
//   - Switches source on every live-channel status change, tearing the old
//     source down before arming the new one
//   - Replaces each half of the view (entries, stats) wholesale per snapshot
//   - Offers a mode-agnostic manual Refresh and a manual live-channel retry
package queue
