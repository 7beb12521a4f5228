// Package api provides the salon backend REST client and the wire DTOs shared
// with the push channel.
//
// Endpoints:
//   - GET /queue        current wait list (full snapshot)
//   - GET /queue/stats  aggregate stats (may require staff privileges)
//
// Push topics carry the same JSON bodies, so DecodeQueue and DecodeStats are
// used for both sources.
package api
