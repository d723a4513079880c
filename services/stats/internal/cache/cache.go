// Package cache holds computed user statistics between requests.
package cache

import (
	"context"
	"slices"

	"github.com/example/streamd/services/stats/internal/watchstats"
)

// InvalidateSubject is the NATS subject replicas listen on to drop entries.
// The payload is a cache key; an empty payload or "ALL" flushes everything.
const InvalidateSubject = "stats.cache.invalidate"

// FlushAll is the invalidation payload that clears every entry.
const FlushAll = "ALL"

// Cache stores UserStats by key. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (watchstats.UserStats, bool, error)
	Set(ctx context.Context, key string, v watchstats.UserStats) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

// UserKey is the cache key for one user's statistics.
func UserKey(userID string) string {
	return "user:" + userID
}

// clone copies the slices and the rating pointer so callers never share
// backing arrays with a stored entry. nil stays nil and empty stays empty.
func clone(v watchstats.UserStats) watchstats.UserStats {
	if v.AverageRating != nil {
		avg := *v.AverageRating
		v.AverageRating = &avg
	}
	v.YearlyData = slices.Clone(v.YearlyData)
	v.TopGenres = slices.Clone(v.TopGenres)
	v.RatingDistribution = slices.Clone(v.RatingDistribution)
	v.FormatBreakdown = slices.Clone(v.FormatBreakdown)
	return v
}
