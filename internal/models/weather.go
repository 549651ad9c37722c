package models

import "time"

// CurrentConditions is a single weather snapshot for a coordinate.
// Nil numeric fields mean no contributing source supplied a value.
type CurrentConditions struct {
	Temperature   *float64 `json:"temperature"`
	FeelsLike     *float64 `json:"feels_like"`
	Humidity      *float64 `json:"humidity"`       // %
	Pressure      *float64 `json:"pressure"`       // hPa
	WindSpeed     *float64 `json:"wind_speed"`     // km/h
	WindDirection *float64 `json:"wind_direction"` // degrees
	CloudCover    *float64 `json:"cloud_cover"`    // %
	Visibility    *float64 `json:"visibility"`     // km
	UVIndex       *float64 `json:"uv_index"`
	Precipitation *float64 `json:"precipitation"` // mm
	WeatherCode   *int     `json:"weather_code"`
	Description   string   `json:"description"`
	Icon          string   `json:"icon"`
	Timestamp     int64    `json:"timestamp"` // epoch ms
	Sources       []string `json:"sources"`
}

// DailyRecord is one calendar day. Date (YYYY-MM-DD) is the merge key.
type DailyRecord struct {
	Date                     string   `json:"date"`
	TempMin                  *float64 `json:"temp_min"`
	TempMax                  *float64 `json:"temp_max"`
	TempAvg                  *float64 `json:"temp_avg"`
	PrecipitationSum         *float64 `json:"precipitation_sum"`
	PrecipitationProbability *float64 `json:"precipitation_probability"`
	WindSpeedMax             *float64 `json:"wind_speed_max"`
	HumidityAvg              *float64 `json:"humidity_avg"`
	SunshineHours            *float64 `json:"sunshine_hours"`
	UVMax                    *float64 `json:"uv_max"`
	WeatherCode              *int     `json:"weather_code"`
	Sunrise                  *string  `json:"sunrise"`
	Sunset                   *string  `json:"sunset"`
	Sources                  []string `json:"sources"`
}

// HourlyRecord is one hour slot. Time (YYYY-MM-DDTHH:MM[:SS]) is the merge key.
// DailyFallback marks records synthesized from a DailyRecord.
type HourlyRecord struct {
	Time                     string   `json:"time"`
	Temperature              *float64 `json:"temperature"`
	FeelsLike                *float64 `json:"feels_like"`
	Humidity                 *float64 `json:"humidity"`
	Precipitation            *float64 `json:"precipitation"`
	PrecipitationProbability *float64 `json:"precipitation_probability"`
	WindSpeed                *float64 `json:"wind_speed"`
	WindDirection            *float64 `json:"wind_direction"`
	CloudCover               *float64 `json:"cloud_cover"`
	Pressure                 *float64 `json:"pressure"`
	WeatherCode              *int     `json:"weather_code"`
	Sources                  []string `json:"sources"`
	DailyFallback            bool     `json:"daily_fallback,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Mean returns (a+b)/2, or nil when either operand is missing.
func Mean(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return Float((*a + *b) / 2)
}

// OrZero returns v, or a pointer to zero when v is nil. Used for precipitation,
// where a missing value means no rain was recorded.
func OrZero(v *float64) *float64 {
	if v == nil {
		return Float(0)
	}
	return v
}
