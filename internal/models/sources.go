package models

// Source identifiers.
const (
	SourceOpenMeteo      = "openmeteo"
	SourceOpenWeatherMap = "openweathermap"
	SourceVisualCrossing = "visualcrossing"
	SourceWeatherAPI     = "weatherapi"
	SourceBrightSky      = "brightsky"
	SourceMeteostat      = "meteostat"
)

// Priority is the merge precedence: the free primary aggregator first, paid
// sources next, region-specific sources last.
var Priority = []string{
	SourceOpenMeteo,
	SourceOpenWeatherMap,
	SourceVisualCrossing,
	SourceWeatherAPI,
	SourceBrightSky,
}

// PriorityRank returns the position of source in Priority, or len(Priority)
// for unknown sources.
func PriorityRank(source string) int {
	for i, s := range Priority {
		if s == source {
			return i
		}
	}
	return len(Priority)
}

// Kind is a request kind. It is part of cache keys and metric labels.
type Kind string

const (
	KindCurrent Kind = "current"
	KindDaily   Kind = "daily"
	KindHourly  Kind = "hourly"
)
