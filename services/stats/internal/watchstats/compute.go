package watchstats

import (
	"math"
	"sort"
)

const (
	topGenresLimit = 5
	ratingBuckets  = 10
)

// ReportingYear is the calendar year an entry is attributed to: the year of
// CompletedAt, else StartedAt, else CreatedAt, else currentYear. Years are
// taken in UTC.
func ReportingYear(e WatchEntry, currentYear int) int {
	switch {
	case e.CompletedAt != nil:
		return e.CompletedAt.UTC().Year()
	case e.StartedAt != nil:
		return e.StartedAt.UTC().Year()
	case e.CreatedAt != nil:
		return e.CreatedAt.UTC().Year()
	}
	return currentYear
}

// ReportingYears returns the distinct reporting years of entries, ascending.
func ReportingYears(entries []WatchEntry, currentYear int) []int {
	seen := make(map[int]struct{}, len(entries))
	years := make([]int, 0, len(entries))
	for _, e := range entries {
		y := ReportingYear(e, currentYear)
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// episodesWatched returns the episodes an entry contributes to both the
// episode total and the watch time. Completed entries count the full run only
// when the catalog knows it; planned and dropped entries count nothing.
func episodesWatched(e WatchEntry) int {
	switch e.Status {
	case StatusCompleted:
		if e.Anime.EpisodeCount != nil {
			return *e.Anime.EpisodeCount
		}
		return 0
	case StatusWatching, StatusPaused:
		return e.CurrentEpisode
	}
	return 0
}

func episodeDuration(a Anime) int {
	if a.EpisodeDuration == nil {
		return DefaultEpisodeDuration
	}
	return *a.EpisodeDuration
}

// Compute reduces in into a UserStats. Fields scoped to the current year use
// currentYear; nothing here reads the clock, so equal inputs give equal output.
func Compute(in Input, currentYear int) UserStats {
	out := UserStats{CurrentYear: currentYear}

	yearly := make(map[int]*YearlyBreakdown)
	ratingCounts := make(map[int]int)
	formatCounts := make(map[Format]int)
	currentAnime := make(map[string]struct{})
	var ratingSum float64
	var ratingN int

	for _, e := range in.Entries {
		year := ReportingYear(e, currentYear)

		yb, ok := yearly[year]
		if !ok {
			yb = &YearlyBreakdown{Year: year, TotalAnimeForYear: in.TotalAnimeByYear[year]}
			yearly[year] = yb
		}
		switch e.Status {
		case StatusWatching:
			yb.Watching++
		case StatusCompleted:
			yb.Completed++
		case StatusPlanning:
			yb.Planned++
		case StatusPaused:
			yb.Paused++
		case StatusDropped:
			yb.Dropped++
		}

		eps := episodesWatched(e)
		out.TotalEpisodes += eps
		out.WatchTimeMinutes += eps * episodeDuration(e.Anime)

		if year != currentYear {
			continue
		}
		out.TotalAnime++
		currentAnime[e.AnimeID] = struct{}{}

		if e.Rating != nil {
			ratingCounts[int(math.Round(*e.Rating))]++
			ratingSum += *e.Rating
			ratingN++
		}
		if e.Anime.Format.Valid() {
			formatCounts[e.Anime.Format]++
		}
	}

	genreCounts := make(map[string]int)
	for _, g := range in.Genres {
		if _, ok := currentAnime[g.AnimeID]; ok {
			genreCounts[g.GenreName]++
		}
	}

	out.YearlyData = make([]YearlyBreakdown, 0, len(yearly))
	for _, yb := range yearly {
		out.YearlyData = append(out.YearlyData, *yb)
	}
	sort.Slice(out.YearlyData, func(i, j int) bool {
		return out.YearlyData[i].Year > out.YearlyData[j].Year
	})

	out.TopGenres = topGenres(genreCounts)
	out.RatingDistribution = ratingDistribution(ratingCounts)
	out.FormatBreakdown = formatBreakdown(formatCounts)

	if ratingN > 0 {
		avg := math.Round(ratingSum/float64(ratingN)*10) / 10
		out.AverageRating = &avg
	}
	return out
}

func topGenres(counts map[string]int) []GenreCount {
	genres := make([]GenreCount, 0, len(counts))
	for name, n := range counts {
		genres = append(genres, GenreCount{Name: name, Count: n})
	}
	sort.Slice(genres, func(i, j int) bool {
		if genres[i].Count != genres[j].Count {
			return genres[i].Count > genres[j].Count
		}
		return genres[i].Name < genres[j].Name
	})
	if len(genres) > topGenresLimit {
		genres = genres[:topGenresLimit]
	}
	return genres
}

func ratingDistribution(counts map[int]int) []RatingBucket {
	dist := make([]RatingBucket, ratingBuckets)
	for i := range dist {
		dist[i] = RatingBucket{Rating: i + 1, Count: counts[i+1]}
	}
	return dist
}

func formatBreakdown(counts map[Format]int) []FormatCount {
	formats := make([]FormatCount, 0, len(counts))
	for f, n := range counts {
		formats = append(formats, FormatCount{Format: f, Count: n})
	}
	sort.Slice(formats, func(i, j int) bool {
		if formats[i].Count != formats[j].Count {
			return formats[i].Count > formats[j].Count
		}
		return formatOrder[formats[i].Format] < formatOrder[formats[j].Format]
	})
	return formats
}
