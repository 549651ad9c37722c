package sources

import (
	"net/url"
	"strings"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/weathercode"
)

const (
	openMeteoURL        = "https://api.open-meteo.com"
	openMeteoArchiveURL = "https://archive-api.open-meteo.com"
)

var (
	openMeteoCurrentVars = []string{
		"temperature_2m", "apparent_temperature", "relative_humidity_2m",
		"pressure_msl", "wind_speed_10m", "wind_direction_10m", "cloud_cover",
		"visibility", "uv_index", "precipitation", "weather_code",
	}
	openMeteoDailyVars = []string{
		"weather_code", "temperature_2m_max", "temperature_2m_min",
		"temperature_2m_mean", "precipitation_sum", "precipitation_probability_max",
		"wind_speed_10m_max", "relative_humidity_2m_mean", "sunshine_duration",
		"uv_index_max", "sunrise", "sunset",
	}
	openMeteoHourlyVars = []string{
		"temperature_2m", "apparent_temperature", "relative_humidity_2m",
		"precipitation", "precipitation_probability", "wind_speed_10m",
		"wind_direction_10m", "cloud_cover", "pressure_msl", "weather_code",
	}
)

// OpenMeteo is the free primary aggregator. Its weather codes are WMO codes
// already.
type OpenMeteo struct {
	baseURL    string
	archiveURL string
}

func NewOpenMeteo(baseURL, archiveURL string) *OpenMeteo {
	return &OpenMeteo{
		baseURL:    orDefault(baseURL, openMeteoURL),
		archiveURL: orDefault(archiveURL, openMeteoArchiveURL),
	}
}

func (s *OpenMeteo) ID() string                     { return models.SourceOpenMeteo }
func (s *OpenMeteo) Credential() string             { return "" }
func (s *OpenMeteo) Supports(kind models.Kind) bool { return true }

func (s *OpenMeteo) Request(kind models.Kind, q Query, _ string) (Request, error) {
	switch kind {
	case models.KindCurrent:
		return Request{URL: s.CurrentURL(q.Lat, q.Lon)}, nil
	case models.KindDaily:
		return Request{URL: s.DailyURL(q.Lat, q.Lon, q.Start, q.End)}, nil
	case models.KindHourly:
		return Request{URL: s.HourlyURL(q.Lat, q.Lon, q.Start, q.End)}, nil
	}
	return Request{}, unsupported(s.ID(), kind)
}

func (s *OpenMeteo) CurrentURL(lat, lon float64) string {
	p := s.params(lat, lon)
	p.Set("current", strings.Join(openMeteoCurrentVars, ","))
	return buildURL(s.baseURL, "/v1/forecast", p)
}

func (s *OpenMeteo) DailyURL(lat, lon float64, start, end string) string {
	p := s.params(lat, lon)
	p.Set("start_date", start)
	p.Set("end_date", end)
	p.Set("daily", strings.Join(openMeteoDailyVars, ","))
	return buildURL(s.archiveURL, "/v1/archive", p)
}

func (s *OpenMeteo) HourlyURL(lat, lon float64, start, end string) string {
	p := s.params(lat, lon)
	p.Set("start_date", start)
	p.Set("end_date", end)
	p.Set("hourly", strings.Join(openMeteoHourlyVars, ","))
	return buildURL(s.archiveURL, "/v1/archive", p)
}

func (s *OpenMeteo) params(lat, lon float64) url.Values {
	p := url.Values{}
	p.Set("latitude", coord(lat))
	p.Set("longitude", coord(lon))
	p.Set("wind_speed_unit", "kmh")
	p.Set("timezone", "auto")
	return p
}

type openMeteoCurrentResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Current          *struct {
		Time          string `json:"time"`
		Temperature   num    `json:"temperature_2m"`
		FeelsLike     num    `json:"apparent_temperature"`
		Humidity      num    `json:"relative_humidity_2m"`
		Pressure      num    `json:"pressure_msl"`
		WindSpeed     num    `json:"wind_speed_10m"`
		WindDirection num    `json:"wind_direction_10m"`
		CloudCover    num    `json:"cloud_cover"`
		Visibility    num    `json:"visibility"` // m
		UVIndex       num    `json:"uv_index"`
		Precipitation num    `json:"precipitation"`
		WeatherCode   num    `json:"weather_code"`
	} `json:"current"`
}

type openMeteoDailyResponse struct {
	Daily *struct {
		Time             []string  `json:"time"`
		WeatherCode      []num     `json:"weather_code"`
		TempMax          []num     `json:"temperature_2m_max"`
		TempMin          []num     `json:"temperature_2m_min"`
		TempMean         []num     `json:"temperature_2m_mean"`
		PrecipitationSum []num     `json:"precipitation_sum"`
		PrecipProb       []num     `json:"precipitation_probability_max"`
		WindSpeedMax     []num     `json:"wind_speed_10m_max"`
		HumidityMean     []num     `json:"relative_humidity_2m_mean"`
		Sunshine         []num     `json:"sunshine_duration"` // seconds
		UVMax            []num     `json:"uv_index_max"`
		Sunrise          []*string `json:"sunrise"`
		Sunset           []*string `json:"sunset"`
	} `json:"daily"`
}

type openMeteoHourlyResponse struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Hourly           *struct {
		Time          []string `json:"time"`
		Temperature   []num    `json:"temperature_2m"`
		FeelsLike     []num    `json:"apparent_temperature"`
		Humidity      []num    `json:"relative_humidity_2m"`
		Precipitation []num    `json:"precipitation"`
		PrecipProb    []num    `json:"precipitation_probability"`
		WindSpeed     []num    `json:"wind_speed_10m"`
		WindDirection []num    `json:"wind_direction_10m"`
		CloudCover    []num    `json:"cloud_cover"`
		Pressure      []num    `json:"pressure_msl"`
		WeatherCode   []num    `json:"weather_code"`
	} `json:"hourly"`
}

func wmoCode(v *float64) *int {
	if v == nil {
		return nil
	}
	return models.Int(weathercode.Normalize(int(*v)))
}

func (s *OpenMeteo) NormalizeCurrent(raw []byte) *models.CurrentConditions {
	var resp openMeteoCurrentResponse
	if !decode(raw, &resp) || resp.Current == nil {
		return nil
	}
	c := resp.Current

	out := &models.CurrentConditions{
		Temperature:   c.Temperature.ptr(),
		FeelsLike:     c.FeelsLike.ptr(),
		Humidity:      c.Humidity.ptr(),
		Pressure:      c.Pressure.ptr(),
		WindSpeed:     c.WindSpeed.ptr(),
		WindDirection: c.WindDirection.ptr(),
		CloudCover:    c.CloudCover.ptr(),
		Visibility:    c.Visibility.scaled(0.001),
		UVIndex:       c.UVIndex.ptr(),
		Precipitation: models.OrZero(c.Precipitation.ptr()),
		WeatherCode:   wmoCode(c.WeatherCode.ptr()),
		Timestamp:     models.NowMillis(),
	}
	if ts, ok := parseLocalMillis(c.Time, resp.UTCOffsetSeconds); ok {
		out.Timestamp = ts
	}
	describe(out)
	return out
}

func (s *OpenMeteo) NormalizeDaily(raw []byte) []models.DailyRecord {
	var resp openMeteoDailyResponse
	if !decode(raw, &resp) || resp.Daily == nil {
		return nil
	}
	d := resp.Daily

	out := make([]models.DailyRecord, 0, len(d.Time))
	for i, date := range d.Time {
		rec := models.DailyRecord{
			Date:                     dateOnly(date),
			TempMax:                  at(d.TempMax, i),
			TempMin:                  at(d.TempMin, i),
			TempAvg:                  at(d.TempMean, i),
			PrecipitationSum:         models.OrZero(at(d.PrecipitationSum, i)),
			PrecipitationProbability: at(d.PrecipProb, i),
			WindSpeedMax:             at(d.WindSpeedMax, i),
			HumidityAvg:              at(d.HumidityMean, i),
			UVMax:                    at(d.UVMax, i),
			WeatherCode:              wmoCode(at(d.WeatherCode, i)),
			Sunrise:                  atString(d.Sunrise, i),
			Sunset:                   atString(d.Sunset, i),
		}
		if sec := at(d.Sunshine, i); sec != nil {
			rec.SunshineHours = models.Float(*sec / 3600)
		}
		if rec.TempAvg == nil {
			rec.TempAvg = models.Mean(rec.TempMin, rec.TempMax)
		}
		out = append(out, rec)
	}
	return out
}

func (s *OpenMeteo) NormalizeHourly(raw []byte) []models.HourlyRecord {
	var resp openMeteoHourlyResponse
	if !decode(raw, &resp) || resp.Hourly == nil {
		return nil
	}
	h := resp.Hourly

	out := make([]models.HourlyRecord, 0, len(h.Time))
	for i, t := range h.Time {
		out = append(out, models.HourlyRecord{
			Time:                     hourKeyUTC(t, resp.UTCOffsetSeconds),
			Temperature:              at(h.Temperature, i),
			FeelsLike:                at(h.FeelsLike, i),
			Humidity:                 at(h.Humidity, i),
			Precipitation:            models.OrZero(at(h.Precipitation, i)),
			PrecipitationProbability: at(h.PrecipProb, i),
			WindSpeed:                at(h.WindSpeed, i),
			WindDirection:            at(h.WindDirection, i),
			CloudCover:               at(h.CloudCover, i),
			Pressure:                 at(h.Pressure, i),
			WeatherCode:              wmoCode(at(h.WeatherCode, i)),
		})
	}
	return out
}

// describe fills Description and Icon from the canonical weather code.
func describe(c *models.CurrentConditions) {
	if c.WeatherCode == nil {
		return
	}
	info := weathercode.Lookup(*c.WeatherCode)
	c.Description = info.Description
	c.Icon = info.Icon
}
