// Package watchstats reduces a user's watch history into the statistics
// summary shown on the profile dashboard.
package watchstats

import "time"

// Status is the tracking state of a watch-list entry.
type Status string

const (
	StatusPlanning  Status = "PLANNING"
	StatusWatching  Status = "WATCHING"
	StatusCompleted Status = "COMPLETED"
	StatusPaused    Status = "PAUSED"
	StatusDropped   Status = "DROPPED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanning, StatusWatching, StatusCompleted, StatusPaused, StatusDropped:
		return true
	}
	return false
}

// Format is the release format of an anime.
type Format string

const (
	FormatUnknown Format = ""
	FormatTV      Format = "TV"
	FormatMovie   Format = "MOVIE"
	FormatOVA     Format = "OVA"
	FormatONA     Format = "ONA"
	FormatSpecial Format = "SPECIAL"
	FormatMusic   Format = "MUSIC"
)

// formatOrder breaks count ties in the format breakdown.
var formatOrder = map[Format]int{
	FormatTV:      0,
	FormatMovie:   1,
	FormatOVA:     2,
	FormatONA:     3,
	FormatSpecial: 4,
	FormatMusic:   5,
}

// Valid reports whether f is a known, non-empty format.
func (f Format) Valid() bool {
	_, ok := formatOrder[f]
	return ok
}

// DefaultEpisodeDuration is used when the catalog has no duration for an anime.
const DefaultEpisodeDuration = 24

// Anime is the catalog data joined onto a watch entry.
type Anime struct {
	Format          Format
	EpisodeCount    *int
	EpisodeDuration *int // minutes
}

// WatchEntry is one user's tracking row for one anime.
type WatchEntry struct {
	AnimeID        string
	Status         Status
	CurrentEpisode int
	Rating         *float64
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      *time.Time
	Anime          Anime
}

// GenreAssociation pairs an anime with one of its genres.
type GenreAssociation struct {
	AnimeID   string `json:"anime_id"`
	GenreName string `json:"genre_name"`
}

// Input is everything Compute needs, already fetched.
type Input struct {
	Entries          []WatchEntry
	Genres           []GenreAssociation
	TotalAnimeByYear map[int]int
}

// YearlyBreakdown counts a user's entries per status for one reporting year.
type YearlyBreakdown struct {
	Year              int `json:"year"`
	Watching          int `json:"watching"`
	Completed         int `json:"completed"`
	Planned           int `json:"planned"`
	Paused            int `json:"paused"`
	Dropped           int `json:"dropped"`
	TotalAnimeForYear int `json:"total_anime_for_year"`
}

type GenreCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type RatingBucket struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

type FormatCount struct {
	Format Format `json:"format"`
	Count  int    `json:"count"`
}

// UserStats is the summary returned to the dashboard. It is recomputed on
// every request and never persisted.
type UserStats struct {
	CurrentYear        int               `json:"current_year"`
	TotalAnime         int               `json:"total_anime"`
	TotalEpisodes      int               `json:"total_episodes"`
	WatchTimeMinutes   int               `json:"watch_time_minutes"`
	AverageRating      *float64          `json:"average_rating"`
	YearlyData         []YearlyBreakdown `json:"yearly_data"`
	TopGenres          []GenreCount      `json:"top_genres"`
	RatingDistribution []RatingBucket    `json:"rating_distribution"`
	FormatBreakdown    []FormatCount     `json:"format_breakdown"`
}
