package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/streamd/services/stats/internal/watchstats"
)

// PostgresStatsSource is the production Postgres-backed implementation.
type PostgresStatsSource struct {
	db *pgxpool.Pool
}

func NewPostgresStatsSource(db *pgxpool.Pool) *PostgresStatsSource {
	return &PostgresStatsSource{db: db}
}

func (s *PostgresStatsSource) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1::uuid)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: query: %w", err)
	}
	return exists, nil
}

func (s *PostgresStatsSource) ListWatchEntries(ctx context.Context, userID string) ([]RawWatchEntry, error) {
	rows, err := s.db.Query(ctx, `
SELECT w.anime_id::text, w.status, w.current_episode, w.rating::float8,
       w.started_at, w.completed_at, w.created_at,
       a.format, a.episode_count, a.episode_duration
FROM watch_list w
JOIN anime a ON a.id = w.anime_id
WHERE w.user_id = $1::uuid AND w.is_private = false`, userID)
	if err != nil {
		return nil, fmt.Errorf("list watch entries: query: %w", err)
	}
	defer rows.Close()

	var out []RawWatchEntry
	for rows.Next() {
		var r RawWatchEntry
		if err := rows.Scan(&r.AnimeID, &r.Status, &r.CurrentEpisode, &r.Rating,
			&r.StartedAt, &r.CompletedAt, &r.CreatedAt,
			&r.Format, &r.EpisodeCount, &r.EpisodeDuration); err != nil {
			return nil, fmt.Errorf("list watch entries: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list watch entries: rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStatsSource) ListGenres(ctx context.Context, animeIDs []string) ([]watchstats.GenreAssociation, error) {
	if len(animeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT ag.anime_id::text, g.name
FROM anime_genres ag
JOIN genres g ON g.id = ag.genre_id
WHERE ag.anime_id = ANY($1::uuid[])`, animeIDs)
	if err != nil {
		return nil, fmt.Errorf("list genres: query: %w", err)
	}
	defer rows.Close()

	var out []watchstats.GenreAssociation
	for rows.Next() {
		var g watchstats.GenreAssociation
		if err := rows.Scan(&g.AnimeID, &g.GenreName); err != nil {
			return nil, fmt.Errorf("list genres: scan: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list genres: rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStatsSource) CountAnimeByYear(ctx context.Context, years []int) (map[int]int, error) {
	out := make(map[int]int, len(years))
	if len(years) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
SELECT season_year, COUNT(*)
FROM anime
WHERE season_year = ANY($1::int[])
GROUP BY season_year`, years)
	if err != nil {
		return nil, fmt.Errorf("count anime by year: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var year, n int
		if err := rows.Scan(&year, &n); err != nil {
			return nil, fmt.Errorf("count anime by year: scan: %w", err)
		}
		out[year] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count anime by year: rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStatsSource) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
