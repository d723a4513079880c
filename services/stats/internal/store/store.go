package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/streamd/services/stats/internal/watchstats"
)

// ErrInvalidRow marks a watch-list row that cannot be turned into a WatchEntry.
var ErrInvalidRow = errors.New("invalid watch-list row")

// RawWatchEntry is a watch-list row as stored, joined to its anime.
type RawWatchEntry struct {
	AnimeID         string
	Status          string
	CurrentEpisode  int
	Rating          *float64
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       *time.Time
	Format          *string
	EpisodeCount    *int
	EpisodeDuration *int
}

// StatsSource supplies the rows the statistics aggregation runs over.
type StatsSource interface {
	// UserExists reports whether a profile with userID exists.
	UserExists(ctx context.Context, userID string) (bool, error)
	// ListWatchEntries returns the user's public watch-list rows.
	ListWatchEntries(ctx context.Context, userID string) ([]RawWatchEntry, error)
	// ListGenres returns genre associations for the given anime.
	ListGenres(ctx context.Context, animeIDs []string) ([]watchstats.GenreAssociation, error)
	// CountAnimeByYear returns how many catalog anime have each season year.
	// Years with no anime are absent from the result.
	CountAnimeByYear(ctx context.Context, years []int) (map[int]int, error)
	Ping(ctx context.Context) error
}

// Normalize validates a raw row and converts it to a WatchEntry.
func Normalize(r RawWatchEntry) (watchstats.WatchEntry, error) {
	animeID := strings.TrimSpace(r.AnimeID)
	if animeID == "" {
		return watchstats.WatchEntry{}, fmt.Errorf("%w: missing anime_id", ErrInvalidRow)
	}
	status := watchstats.Status(strings.ToUpper(strings.TrimSpace(r.Status)))
	if !status.Valid() {
		return watchstats.WatchEntry{}, fmt.Errorf("%w: anime %s: unknown status %q", ErrInvalidRow, animeID, r.Status)
	}
	if r.Rating != nil && (*r.Rating < 0 || *r.Rating > 10) {
		return watchstats.WatchEntry{}, fmt.Errorf("%w: anime %s: rating %v out of range", ErrInvalidRow, animeID, *r.Rating)
	}

	e := watchstats.WatchEntry{
		AnimeID:        animeID,
		Status:         status,
		CurrentEpisode: max(r.CurrentEpisode, 0),
		Rating:         r.Rating,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
		Anime: watchstats.Anime{
			EpisodeCount:    positive(r.EpisodeCount),
			EpisodeDuration: positive(r.EpisodeDuration),
		},
	}
	if r.Format != nil {
		if f := watchstats.Format(strings.ToUpper(strings.TrimSpace(*r.Format))); f.Valid() {
			e.Anime.Format = f
		}
	}
	return e, nil
}

func positive(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	n := *v
	return &n
}
