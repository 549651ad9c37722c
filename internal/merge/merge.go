// Package merge combines normalized records from several sources into one
// result. Higher-priority sources win; lower-priority sources only fill fields
// that are still null.
package merge

import (
	"sort"

	"github.com/kjstillabower/weather-engine/internal/models"
)

// Result is one source's normalized payload.
type Result[T any] struct {
	Source string
	Data   T
}

// byPriority returns results ordered by models.Priority; unknown sources keep
// their arrival order after the known ones.
func byPriority[T any](results []Result[T]) []Result[T] {
	out := make([]Result[T], len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return models.PriorityRank(out[i].Source) < models.PriorityRank(out[j].Source)
	})
	return out
}

// fill copies src into *dst when *dst is nil and reports whether it did.
func fill[P any](dst **P, src *P) bool {
	if *dst == nil && src != nil {
		*dst = src
		return true
	}
	return false
}

func appendSource(sources []string, id string) []string {
	for _, s := range sources {
		if s == id {
			return sources
		}
	}
	return append(sources, id)
}

// MergeCurrent merges current conditions. The first non-nil payload in
// priority order seeds the result; a later source is listed only when it
// supplied at least one field. Returns nil when no source has data.
func MergeCurrent(results []Result[*models.CurrentConditions]) *models.CurrentConditions {
	var out *models.CurrentConditions
	for _, r := range byPriority(results) {
		c := r.Data
		if c == nil {
			continue
		}
		if out == nil {
			seed := *c
			seed.Sources = []string{r.Source}
			out = &seed
			continue
		}

		contributed := false
		contributed = fill(&out.Temperature, c.Temperature) || contributed
		contributed = fill(&out.FeelsLike, c.FeelsLike) || contributed
		contributed = fill(&out.Humidity, c.Humidity) || contributed
		contributed = fill(&out.Pressure, c.Pressure) || contributed
		contributed = fill(&out.WindSpeed, c.WindSpeed) || contributed
		contributed = fill(&out.WindDirection, c.WindDirection) || contributed
		contributed = fill(&out.CloudCover, c.CloudCover) || contributed
		contributed = fill(&out.Visibility, c.Visibility) || contributed
		contributed = fill(&out.UVIndex, c.UVIndex) || contributed
		contributed = fill(&out.Precipitation, c.Precipitation) || contributed
		if fill(&out.WeatherCode, c.WeatherCode) {
			out.Description = c.Description
			out.Icon = c.Icon
			contributed = true
		}
		if contributed {
			out.Sources = appendSource(out.Sources, r.Source)
		}
	}
	return out
}

func fillDaily(dst *models.DailyRecord, src models.DailyRecord) {
	fill(&dst.TempMin, src.TempMin)
	fill(&dst.TempMax, src.TempMax)
	fill(&dst.TempAvg, src.TempAvg)
	fill(&dst.PrecipitationSum, src.PrecipitationSum)
	fill(&dst.PrecipitationProbability, src.PrecipitationProbability)
	fill(&dst.WindSpeedMax, src.WindSpeedMax)
	fill(&dst.HumidityAvg, src.HumidityAvg)
	fill(&dst.SunshineHours, src.SunshineHours)
	fill(&dst.UVMax, src.UVMax)
	fill(&dst.WeatherCode, src.WeatherCode)
	fill(&dst.Sunrise, src.Sunrise)
	fill(&dst.Sunset, src.Sunset)
}

func fillHourly(dst *models.HourlyRecord, src models.HourlyRecord) {
	fill(&dst.Temperature, src.Temperature)
	fill(&dst.FeelsLike, src.FeelsLike)
	fill(&dst.Humidity, src.Humidity)
	fill(&dst.Precipitation, src.Precipitation)
	fill(&dst.PrecipitationProbability, src.PrecipitationProbability)
	fill(&dst.WindSpeed, src.WindSpeed)
	fill(&dst.WindDirection, src.WindDirection)
	fill(&dst.CloudCover, src.CloudCover)
	fill(&dst.Pressure, src.Pressure)
	fill(&dst.WeatherCode, src.WeatherCode)
}

// DailyKey is the merge key of a daily record: the date without time.
func DailyKey(date string) string {
	if len(date) > 10 {
		return date[:10]
	}
	return date
}

// HourlyKey is the merge key of an hourly record, YYYY-MM-DDTHH:MM.
func HourlyKey(t string) string {
	if len(t) > 10 && t[10] == ' ' {
		t = t[:10] + "T" + t[11:]
	}
	if len(t) > 16 {
		return t[:16]
	}
	return t
}

// keyed merges records sharing a key: the first occurrence in priority order
// seeds, later ones back-fill. Output is sorted by key.
func keyed[R any](
	results []Result[[]R],
	key func(R) string,
	sources func(*R) *[]string,
	backfill func(*R, R),
) []R {
	index := make(map[string]int)
	var out []R
	for _, r := range byPriority(results) {
		for _, rec := range r.Data {
			k := key(rec)
			if k == "" {
				continue
			}
			i, ok := index[k]
			if !ok {
				seed := rec
				*sources(&seed) = []string{r.Source}
				index[k] = len(out)
				out = append(out, seed)
				continue
			}
			backfill(&out[i], rec)
			s := sources(&out[i])
			*s = appendSource(*s, r.Source)
		}
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

// MergeDaily merges daily records by date.
func MergeDaily(results []Result[[]models.DailyRecord]) []models.DailyRecord {
	out := keyed(results,
		func(r models.DailyRecord) string { return DailyKey(r.Date) },
		func(r *models.DailyRecord) *[]string { return &r.Sources },
		fillDaily,
	)
	for i := range out {
		out[i].Date = DailyKey(out[i].Date)
	}
	return out
}

// MergeHourly merges hourly records by timestamp.
func MergeHourly(results []Result[[]models.HourlyRecord]) []models.HourlyRecord {
	return keyed(results,
		func(r models.HourlyRecord) string { return HourlyKey(r.Time) },
		func(r *models.HourlyRecord) *[]string { return &r.Sources },
		fillHourly,
	)
}
