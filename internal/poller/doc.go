// Package poller runs a fetch function on a fixed cadence while the live
// channel is unavailable.
//
// The next fetch is scheduled Interval after the previous one completed, so
// fetches never overlap and a slow backend slows the poller down instead of
// piling up requests.
package poller
