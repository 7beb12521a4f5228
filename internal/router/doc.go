// Package router maps push topics to subscriber handlers.
//
// The Connection Manager owns one Router per live session. Each inbound frame
// is decoded as a {"topic", "msg"} envelope and its payload fanned out to the
// handlers registered for that topic. Handles are opaque tokens the caller
// must release.
package router
