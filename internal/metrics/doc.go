// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection status, failures, reconnect attempts and fallback activations
//   - Push frames received per topic, split by applied/malformed/ignored
//   - Pull refreshes per trigger (manual, poll, connect) and their outcome
//   - Current queue length and average wait
package metrics
