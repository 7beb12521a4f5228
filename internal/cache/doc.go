// Package cache keeps the last applied queue view in Redis so a restarted
// front desk can show something before its first pull completes.
package cache
