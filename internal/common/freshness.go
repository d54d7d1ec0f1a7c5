// Package common provides shared utilities for fintrack
package common

import "time"

// Freshness TTLs for data components
const (
	FreshnessHoldingPrice = 6 * time.Hour
	FreshnessSession      = 30 * time.Minute // idle sessions are closed by the reaper
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
