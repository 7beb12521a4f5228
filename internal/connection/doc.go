// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single WebSocket to the queue backend
//   - Tracks a five-state status machine observable through Watch
//   - Reconnects with exponential backoff after a failure
//   - Gives up after MaxReconnectAttempts consecutive failures and stays in
//     fallback until ResetFallback is called
//   - Routes inbound topic frames to handlers registered with Subscribe
package connection
