package store

import (
	"context"
	"sync"

	"github.com/example/streamd/services/stats/internal/watchstats"
)

// MemoryWatchEntry is a watch-list row held by InMemoryStatsSource.
type MemoryWatchEntry struct {
	RawWatchEntry
	Private bool
}

// InMemoryStatsSource is a development-only in-memory implementation.
type InMemoryStatsSource struct {
	mu          sync.RWMutex
	users       map[string]struct{}
	entries     map[string][]MemoryWatchEntry // user_id -> rows
	genres      map[string][]string           // anime_id -> genre names
	seasonYears map[string]int                // anime_id -> season_year
}

func NewInMemoryStatsSource() *InMemoryStatsSource {
	return &InMemoryStatsSource{
		users:       make(map[string]struct{}),
		entries:     make(map[string][]MemoryWatchEntry),
		genres:      make(map[string][]string),
		seasonYears: make(map[string]int),
	}
}

func (s *InMemoryStatsSource) AddUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// AddAnime registers a catalog anime with its season year and genres.
func (s *InMemoryStatsSource) AddAnime(animeID string, seasonYear int, genres ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasonYears[animeID] = seasonYear
	s.genres[animeID] = append([]string(nil), genres...)
}

func (s *InMemoryStatsSource) AddEntry(userID string, e MemoryWatchEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
	s.entries[userID] = append(s.entries[userID], e)
}

func (s *InMemoryStatsSource) UserExists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *InMemoryStatsSource) ListWatchEntries(_ context.Context, userID string) ([]RawWatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RawWatchEntry
	for _, e := range s.entries[userID] {
		if e.Private {
			continue
		}
		out = append(out, e.RawWatchEntry)
	}
	return out, nil
}

func (s *InMemoryStatsSource) ListGenres(_ context.Context, animeIDs []string) ([]watchstats.GenreAssociation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []watchstats.GenreAssociation
	for _, id := range animeIDs {
		for _, name := range s.genres[id] {
			out = append(out, watchstats.GenreAssociation{AnimeID: id, GenreName: name})
		}
	}
	return out, nil
}

func (s *InMemoryStatsSource) CountAnimeByYear(_ context.Context, years []int) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[int]struct{}, len(years))
	for _, y := range years {
		want[y] = struct{}{}
	}
	out := make(map[int]int, len(years))
	for _, y := range s.seasonYears {
		if _, ok := want[y]; ok {
			out[y]++
		}
	}
	return out, nil
}

func (s *InMemoryStatsSource) Ping(context.Context) error { return nil }
