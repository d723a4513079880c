// Package service serves per-user watch statistics on top of a StatsSource.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/streamd/internal/platform/analytics"
	"github.com/example/streamd/services/stats/internal/cache"
	"github.com/example/streamd/services/stats/internal/store"
	"github.com/example/streamd/services/stats/internal/watchstats"
)

const errorDomain = "stats.streamd"

// Error reasons carried in errdetails.ErrorInfo.
const (
	ReasonInvalidUserID    = "INVALID_USER_ID"
	ReasonUserNotFound     = "USER_NOT_FOUND"
	ReasonStatsFetchFailed = "STATS_FETCH_FAILED"
)

// Broadcaster fans cache invalidations out to other replicas. *nats.Conn satisfies it.
type Broadcaster interface {
	Publish(subj string, data []byte) error
}

// Service computes user statistics. Everything but Source is optional.
type Service struct {
	Source    store.StatsSource
	Cache     cache.Cache
	Broadcast Broadcaster
	Analytics *analytics.Publisher
	Metrics   *Metrics
	Log       *zap.Logger
	Now       func() time.Time
}

// UserStats returns the statistics for userID relative to the current UTC year.
// Errors are gRPC status values; no partial result is returned on failure.
func (s *Service) UserStats(ctx context.Context, userID string) (watchstats.UserStats, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		s.Metrics.computed("invalid")
		return watchstats.UserStats{}, statusError(codes.InvalidArgument, "invalid user id", ReasonInvalidUserID)
	}
	userID = id.String()
	currentYear := s.now().UTC().Year()
	key := cache.UserKey(userID)

	if stats, ok := s.cached(ctx, key, currentYear); ok {
		s.Metrics.computed("ok")
		s.publishViewed(userID, stats, true)
		return stats, nil
	}

	start := time.Now()
	var (
		exists bool
		raws   []store.RawWatchEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exists, err = s.Source.UserExists(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		raws, err = s.Source.ListWatchEntries(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return watchstats.UserStats{}, s.fetchFailed(userID, err)
	}
	if !exists {
		s.Metrics.computed("not_found")
		return watchstats.UserStats{}, statusError(codes.NotFound, "user not found", ReasonUserNotFound)
	}

	in := watchstats.Input{Entries: s.normalize(userID, raws)}
	animeIDs := currentYearAnime(in.Entries, currentYear)
	years := watchstats.ReportingYears(in.Entries, currentYear)

	g, gctx = errgroup.WithContext(ctx)
	if len(animeIDs) > 0 {
		g.Go(func() error {
			var err error
			in.Genres, err = s.Source.ListGenres(gctx, animeIDs)
			return err
		})
	}
	if len(years) > 0 {
		g.Go(func() error {
			var err error
			in.TotalAnimeByYear, err = s.Source.CountAnimeByYear(gctx, years)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return watchstats.UserStats{}, s.fetchFailed(userID, err)
	}

	stats := watchstats.Compute(in, currentYear)
	s.Metrics.observe(time.Since(start))
	s.Metrics.computed("ok")

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, stats); err != nil {
			s.log().Warn("stats cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.publishViewed(userID, stats, false)
	return stats, nil
}

// Invalidate drops the cached statistics of one user here and on every replica.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	if id, err := uuid.Parse(strings.TrimSpace(userID)); err == nil {
		userID = id.String()
	}
	key := cache.UserKey(userID)
	if s.Cache != nil {
		if err := s.Cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("cache delete %s: %w", key, err)
		}
	}
	s.broadcast(key)
	return nil
}

// Flush drops every cached entry here and on every replica.
func (s *Service) Flush(ctx context.Context) error {
	if s.Cache != nil {
		if err := s.Cache.Flush(ctx); err != nil {
			s.log().Error("stats cache flush failed", zap.Error(err))
			return status.Error(codes.Internal, "cache flush failed")
		}
	}
	s.broadcast(cache.FlushAll)
	s.Analytics.Publish(analytics.SubjectStatsCacheFlushed, "stats_cache_flushed", "", nil)
	return nil
}

func (s *Service) broadcast(payload string) {
	if s.Broadcast == nil {
		return
	}
	if err := s.Broadcast.Publish(cache.InvalidateSubject, []byte(payload)); err != nil {
		s.log().Warn("stats cache broadcast failed", zap.String("payload", payload), zap.Error(err))
	}
}

func (s *Service) cached(ctx context.Context, key string, currentYear int) (watchstats.UserStats, bool) {
	if s.Cache == nil {
		return watchstats.UserStats{}, false
	}
	stats, ok, err := s.Cache.Get(ctx, key)
	switch {
	case err != nil:
		s.Metrics.cacheLookup("error")
		s.log().Warn("stats cache get failed", zap.String("key", key), zap.Error(err))
		return watchstats.UserStats{}, false
	case !ok || stats.CurrentYear != currentYear:
		s.Metrics.cacheLookup("miss")
		return watchstats.UserStats{}, false
	}
	s.Metrics.cacheLookup("hit")
	return stats, true
}

func (s *Service) normalize(userID string, raws []store.RawWatchEntry) []watchstats.WatchEntry {
	entries := make([]watchstats.WatchEntry, 0, len(raws))
	for _, r := range raws {
		e, err := store.Normalize(r)
		if err != nil {
			s.Metrics.invalidRow()
			s.log().Warn("skipping watch-list row", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func (s *Service) fetchFailed(userID string, err error) error {
	s.Metrics.computed("error")
	s.log().Error("stats fetch failed", zap.String("user_id", userID), zap.Error(err))
	return statusError(codes.Internal, "failed to fetch statistics", ReasonStatsFetchFailed)
}

func (s *Service) publishViewed(userID string, stats watchstats.UserStats, cacheHit bool) {
	s.Analytics.Publish(analytics.SubjectStatsViewed, "stats_viewed", userID, map[string]any{
		"cache_hit":    cacheHit,
		"current_year": stats.CurrentYear,
		"total_anime":  stats.TotalAnime,
	})
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// currentYearAnime lists the distinct anime that contribute to genre counts.
func currentYearAnime(entries []watchstats.WatchEntry, currentYear int) []string {
	seen := make(map[string]struct{}, len(entries))
	var ids []string
	for _, e := range entries {
		if watchstats.ReportingYear(e, currentYear) != currentYear {
			continue
		}
		if _, ok := seen[e.AnimeID]; ok {
			continue
		}
		seen[e.AnimeID] = struct{}{}
		ids = append(ids, e.AnimeID)
	}
	return ids
}

func statusError(c codes.Code, msg, reason string) error {
	st := status.New(c, msg)
	if withInfo, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); err == nil {
		st = withInfo
	}
	return st.Err()
}
