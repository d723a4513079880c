package watchstats

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thisYear = 2024

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func intp(v int) *int { return &v }

func ratingp(v float64) *float64 { return &v }

func TestCompute_Empty(t *testing.T) {
	got := Compute(Input{}, thisYear)

	assert.Equal(t, thisYear, got.CurrentYear)
	assert.Empty(t, got.YearlyData)
	assert.NotNil(t, got.YearlyData)
	assert.Zero(t, got.TotalAnime)
	assert.Zero(t, got.TotalEpisodes)
	assert.Zero(t, got.WatchTimeMinutes)
	assert.Nil(t, got.AverageRating)
	assert.Empty(t, got.TopGenres)
	assert.Empty(t, got.FormatBreakdown)
	require.Len(t, got.RatingDistribution, 10)
	for i, b := range got.RatingDistribution {
		assert.Equal(t, i+1, b.Rating)
		assert.Zero(t, b.Count)
	}
}

func TestCompute_EmptyMarshalsAsArrays(t *testing.T) {
	b, err := json.Marshal(Compute(Input{}, thisYear))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, []any{}, raw["yearly_data"])
	assert.Equal(t, []any{}, raw["top_genres"])
	assert.Equal(t, []any{}, raw["format_breakdown"])
	assert.Nil(t, raw["average_rating"])
}

func TestCompute_SingleCompleted(t *testing.T) {
	in := Input{Entries: []WatchEntry{{
		AnimeID:     "a1",
		Status:      StatusCompleted,
		Rating:      ratingp(8),
		CompletedAt: date("2024-06-01"),
		Anime:       Anime{Format: FormatTV, EpisodeCount: intp(12), EpisodeDuration: intp(24)},
	}}}

	got := Compute(in, thisYear)

	assert.Equal(t, 12, got.TotalEpisodes)
	assert.Equal(t, 288, got.WatchTimeMinutes)
	require.NotNil(t, got.AverageRating)
	assert.Equal(t, 8.0, *got.AverageRating)
	assert.Equal(t, RatingBucket{Rating: 8, Count: 1}, got.RatingDistribution[7])
	assert.Equal(t, 1, got.TotalAnime)
	assert.Equal(t, []FormatCount{{Format: FormatTV, Count: 1}}, got.FormatBreakdown)
}

func TestCompute_EpisodeAttribution(t *testing.T) {
	tests := []struct {
		name         string
		entry        WatchEntry
		wantEpisodes int
		wantMinutes  int
	}{
		{
			name:         "completed with known count uses default duration",
			entry:        WatchEntry{Status: StatusCompleted, Anime: Anime{EpisodeCount: intp(10)}},
			wantEpisodes: 10,
			wantMinutes:  240,
		},
		{
			name:         "completed with known count and duration",
			entry:        WatchEntry{Status: StatusCompleted, CurrentEpisode: 3, Anime: Anime{EpisodeCount: intp(2), EpisodeDuration: intp(100)}},
			wantEpisodes: 2,
			wantMinutes:  200,
		},
		{
			name:  "completed without count contributes nothing",
			entry: WatchEntry{Status: StatusCompleted, CurrentEpisode: 7, Anime: Anime{EpisodeDuration: intp(30)}},
		},
		{
			name:         "watching counts progress",
			entry:        WatchEntry{Status: StatusWatching, CurrentEpisode: 5, Anime: Anime{EpisodeCount: intp(12), EpisodeDuration: intp(20)}},
			wantEpisodes: 5,
			wantMinutes:  100,
		},
		{
			name:         "paused counts progress",
			entry:        WatchEntry{Status: StatusPaused, CurrentEpisode: 4},
			wantEpisodes: 4,
			wantMinutes:  96,
		},
		{
			name:  "planning ignores progress",
			entry: WatchEntry{Status: StatusPlanning, CurrentEpisode: 9, Anime: Anime{EpisodeCount: intp(12)}},
		},
		{
			name:  "dropped ignores progress",
			entry: WatchEntry{Status: StatusDropped, CurrentEpisode: 3, Anime: Anime{EpisodeCount: intp(12)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(Input{Entries: []WatchEntry{tt.entry}}, thisYear)
			assert.Equal(t, tt.wantEpisodes, got.TotalEpisodes)
			assert.Equal(t, tt.wantMinutes, got.WatchTimeMinutes)
		})
	}
}

func TestCompute_EpisodeTotalsSpanAllYears(t *testing.T) {
	in := Input{Entries: []WatchEntry{
		{AnimeID: "a1", Status: StatusCompleted, CompletedAt: date("2019-03-01"), Anime: Anime{EpisodeCount: intp(24)}},
		{AnimeID: "a2", Status: StatusWatching, CurrentEpisode: 6, StartedAt: date("2024-02-01")},
	}}

	got := Compute(in, thisYear)

	assert.Equal(t, 30, got.TotalEpisodes)
	assert.Equal(t, 30*24, got.WatchTimeMinutes)
	assert.Equal(t, 1, got.TotalAnime)
}

func TestCompute_YearlyBreakdown(t *testing.T) {
	in := Input{
		Entries: []WatchEntry{
			{AnimeID: "a1", Status: StatusWatching, CurrentEpisode: 5, StartedAt: date("2023-04-10")},
			{AnimeID: "a2", Status: StatusDropped, CurrentEpisode: 3, StartedAt: date("2023-09-10")},
		},
		TotalAnimeByYear: map[int]int{2023: 40, 2021: 300},
	}

	got := Compute(in, thisYear)

	assert.Equal(t, []YearlyBreakdown{{Year: 2023, Watching: 1, Dropped: 1, TotalAnimeForYear: 40}}, got.YearlyData)
	assert.Zero(t, got.TotalAnime)
}

func TestCompute_YearlyDataSortedDescending(t *testing.T) {
	in := Input{Entries: []WatchEntry{
		{AnimeID: "a", Status: StatusCompleted, CompletedAt: date("2021-01-01")},
		{AnimeID: "b", Status: StatusPlanning, CreatedAt: date("2024-01-01")},
		{AnimeID: "c", Status: StatusPaused, StartedAt: date("2022-05-05")},
		{AnimeID: "d", Status: StatusPlanning, CreatedAt: date("2024-03-01")},
	}}

	got := Compute(in, thisYear)

	require.Len(t, got.YearlyData, 3)
	assert.Equal(t, 2024, got.YearlyData[0].Year)
	assert.Equal(t, 2, got.YearlyData[0].Planned)
	assert.Equal(t, 2022, got.YearlyData[1].Year)
	assert.Equal(t, 1, got.YearlyData[1].Paused)
	assert.Equal(t, 2021, got.YearlyData[2].Year)
	assert.Equal(t, 1, got.YearlyData[2].Completed)
	assert.Zero(t, got.YearlyData[0].TotalAnimeForYear)
}

func TestReportingYear(t *testing.T) {
	tests := []struct {
		name  string
		entry WatchEntry
		want  int
	}{
		{"completed wins", WatchEntry{CompletedAt: date("2020-12-31"), StartedAt: date("2019-01-01"), CreatedAt: date("2018-01-01")}, 2020},
		{"started next", WatchEntry{StartedAt: date("2019-01-01"), CreatedAt: date("2018-01-01")}, 2019},
		{"created next", WatchEntry{CreatedAt: date("2022-01-01")}, 2022},
		{"current year last", WatchEntry{}, thisYear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReportingYear(tt.entry, thisYear))
		})
	}
}

func TestReportingYear_UsesUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	local := time.Date(2024, 1, 1, 5, 0, 0, 0, tokyo)

	assert.Equal(t, 2023, ReportingYear(WatchEntry{CompletedAt: &local}, thisYear))
}

func TestReportingYears(t *testing.T) {
	entries := []WatchEntry{
		{CompletedAt: date("2022-01-01")},
		{},
		{StartedAt: date("2020-01-01")},
		{CreatedAt: date("2022-07-07")},
	}
	assert.Equal(t, []int{2020, 2022, thisYear}, ReportingYears(entries, thisYear))
}

func TestCompute_CreatedAtFallbackIsNotCurrentYear(t *testing.T) {
	in := Input{Entries: []WatchEntry{{
		AnimeID:   "a1",
		Status:    StatusPlanning,
		Rating:    ratingp(9),
		CreatedAt: date("2022-01-01"),
		Anime:     Anime{Format: FormatMovie},
	}}}

	got := Compute(in, thisYear)

	require.Len(t, got.YearlyData, 1)
	assert.Equal(t, 2022, got.YearlyData[0].Year)
	assert.Zero(t, got.TotalAnime)
	assert.Nil(t, got.AverageRating)
	assert.Empty(t, got.FormatBreakdown)
}

func TestCompute_Ratings(t *testing.T) {
	in := Input{Entries: []WatchEntry{
		{AnimeID: "a", Status: StatusCompleted, Rating: ratingp(7.5), CompletedAt: date("2024-01-02")},
		{AnimeID: "b", Status: StatusCompleted, Rating: ratingp(9), CompletedAt: date("2024-01-03")},
		{AnimeID: "c", Status: StatusCompleted, Rating: ratingp(8.2), CompletedAt: date("2024-01-04")},
		{AnimeID: "d", Status: StatusWatching, CreatedAt: date("2024-01-05")},
		{AnimeID: "e", Status: StatusCompleted, Rating: ratingp(1), CompletedAt: date("2023-01-05")},
	}}

	got := Compute(in, thisYear)

	require.NotNil(t, got.AverageRating)
	assert.Equal(t, 8.2, *got.AverageRating)
	assert.Equal(t, 2, got.RatingDistribution[7].Count) // 7.5 and 8.2 round to 8
	assert.Equal(t, 1, got.RatingDistribution[8].Count)
	assert.Zero(t, got.RatingDistribution[0].Count)
	total := 0
	for _, b := range got.RatingDistribution {
		total += b.Count
	}
	assert.Equal(t, 3, total)
}

func TestCompute_ZeroRatingCountsTowardAverageOnly(t *testing.T) {
	in := Input{Entries: []WatchEntry{
		{AnimeID: "a", Status: StatusDropped, Rating: ratingp(0), CreatedAt: date("2024-02-02")},
		{AnimeID: "b", Status: StatusCompleted, Rating: ratingp(10), CompletedAt: date("2024-02-02")},
	}}

	got := Compute(in, thisYear)

	require.NotNil(t, got.AverageRating)
	assert.Equal(t, 5.0, *got.AverageRating)
	assert.Equal(t, 1, got.RatingDistribution[9].Count)
	for _, b := range got.RatingDistribution[:9] {
		assert.Zero(t, b.Count)
	}
}

func TestCompute_AverageRatingRoundsToOneDecimal(t *testing.T) {
	in := Input{Entries: []WatchEntry{
		{AnimeID: "a", Rating: ratingp(7), CreatedAt: date("2024-02-02")},
		{AnimeID: "b", Rating: ratingp(8), CreatedAt: date("2024-02-02")},
		{AnimeID: "c", Rating: ratingp(8), CreatedAt: date("2024-02-02")},
	}}

	got := Compute(in, thisYear)

	require.NotNil(t, got.AverageRating)
	assert.Equal(t, 7.7, *got.AverageRating)
}

func TestCompute_TopGenres(t *testing.T) {
	var entries []WatchEntry
	var genres []GenreAssociation
	names := []string{"Action", "Comedy", "Drama", "Fantasy", "Romance", "Sci-Fi", "Slice of Life"}
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("a%d", i)
		entries = append(entries, WatchEntry{AnimeID: id, Status: StatusCompleted, CompletedAt: date("2024-05-05")})
		// genre k is attached to anime 0..k, so counts are 7,6,5,...
		for k := i; k < len(names); k++ {
			genres = append(genres, GenreAssociation{AnimeID: id, GenreName: names[k]})
		}
	}
	entries = append(entries, WatchEntry{AnimeID: "old", Status: StatusCompleted, CompletedAt: date("2020-05-05")})
	genres = append(genres, GenreAssociation{AnimeID: "old", GenreName: "Horror"})
	genres = append(genres, GenreAssociation{AnimeID: "old", GenreName: "Horror"})

	got := Compute(Input{Entries: entries, Genres: genres}, thisYear)

	require.Len(t, got.TopGenres, 5)
	assert.Equal(t, GenreCount{Name: "Slice of Life", Count: 7}, got.TopGenres[0])
	for i := 1; i < len(got.TopGenres); i++ {
		assert.GreaterOrEqual(t, got.TopGenres[i-1].Count, got.TopGenres[i].Count)
	}
	for _, g := range got.TopGenres {
		assert.NotEqual(t, "Horror", g.Name)
	}
}

func TestCompute_GenresDeduplicateRepeatedAnime(t *testing.T) {
	in := Input{
		Entries: []WatchEntry{
			{AnimeID: "a1", Status: StatusWatching, StartedAt: date("2024-01-01")},
			{AnimeID: "a1", Status: StatusCompleted, CompletedAt: date("2024-03-01")},
		},
		Genres: []GenreAssociation{{AnimeID: "a1", GenreName: "Mecha"}},
	}

	got := Compute(in, thisYear)

	assert.Equal(t, []GenreCount{{Name: "Mecha", Count: 1}}, got.TopGenres)
	assert.Equal(t, 2, got.TotalAnime)
}

func TestCompute_GenreTiesBreakByName(t *testing.T) {
	in := Input{
		Entries: []WatchEntry{{AnimeID: "a1", CreatedAt: date("2024-01-01")}},
		Genres: []GenreAssociation{
			{AnimeID: "a1", GenreName: "Sports"},
			{AnimeID: "a1", GenreName: "Action"},
			{AnimeID: "a1", GenreName: "Music"},
		},
	}

	got := Compute(in, thisYear)

	assert.Equal(t, []GenreCount{{"Action", 1}, {"Music", 1}, {"Sports", 1}}, got.TopGenres)
}

func TestCompute_FormatBreakdown(t *testing.T) {
	mk := func(id string, f Format) WatchEntry {
		return WatchEntry{AnimeID: id, Status: StatusCompleted, CompletedAt: date("2024-08-08"), Anime: Anime{Format: f}}
	}
	in := Input{Entries: []WatchEntry{
		mk("1", FormatMovie), mk("2", FormatTV), mk("3", FormatTV), mk("4", FormatOVA),
		mk("5", FormatMusic), mk("6", FormatONA), mk("7", FormatSpecial), mk("8", FormatUnknown),
		mk("9", FormatMovie), mk("10", FormatTV),
	}}

	got := Compute(in, thisYear)

	assert.Equal(t, []FormatCount{
		{FormatTV, 3},
		{FormatMovie, 2},
		{FormatOVA, 1},
		{FormatONA, 1},
		{FormatSpecial, 1},
		{FormatMusic, 1},
	}, got.FormatBreakdown)
}

func TestCompute_Idempotent(t *testing.T) {
	in := Input{
		Entries: []WatchEntry{
			{AnimeID: "a", Status: StatusCompleted, Rating: ratingp(6), CompletedAt: date("2024-01-01"), Anime: Anime{Format: FormatTV, EpisodeCount: intp(12)}},
			{AnimeID: "b", Status: StatusWatching, CurrentEpisode: 2, StartedAt: date("2023-01-01"), Anime: Anime{Format: FormatONA}},
			{AnimeID: "c", Status: StatusPaused, CurrentEpisode: 1, CreatedAt: date("2024-01-01"), Anime: Anime{Format: FormatMovie}},
		},
		Genres: []GenreAssociation{
			{AnimeID: "a", GenreName: "Drama"}, {AnimeID: "c", GenreName: "Comedy"}, {AnimeID: "a", GenreName: "Comedy"},
		},
		TotalAnimeByYear: map[int]int{2024: 10, 2023: 20},
	}

	first, err := json.Marshal(Compute(in, thisYear))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(Compute(in, thisYear))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
