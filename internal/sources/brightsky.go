package sources

import (
	"net/url"
	"time"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/weathercode"
)

const brightSkyURL = "https://api.brightsky.dev"

var brightSkyIcons = weathercode.IconTable{
	"clear-day":           0,
	"clear-night":         0,
	"partly-cloudy-day":   2,
	"partly-cloudy-night": 2,
	"cloudy":              3,
	"wind":                3,
	"fog":                 45,
	"rain":                63,
	"sleet":               67,
	"snow":                73,
	"hail":                96,
	"thunderstorm":        95,
}

// BrightSky serves DWD observations. Coverage is effectively limited to
// Germany; elsewhere it returns 404 or empty payloads.
type BrightSky struct {
	baseURL string
}

func NewBrightSky(baseURL string) *BrightSky {
	return &BrightSky{baseURL: orDefault(baseURL, brightSkyURL)}
}

func (s *BrightSky) ID() string         { return models.SourceBrightSky }
func (s *BrightSky) Credential() string { return "" }

func (s *BrightSky) Supports(kind models.Kind) bool {
	return kind == models.KindCurrent || kind == models.KindHourly
}

func (s *BrightSky) Request(kind models.Kind, q Query, _ string) (Request, error) {
	switch kind {
	case models.KindCurrent:
		return Request{URL: s.CurrentURL(q.Lat, q.Lon)}, nil
	case models.KindHourly:
		u, err := s.HourlyURL(q.Lat, q.Lon, q.Start, q.End)
		if err != nil {
			return Request{}, err
		}
		return Request{URL: u}, nil
	}
	return Request{}, unsupported(s.ID(), kind)
}

func (s *BrightSky) CurrentURL(lat, lon float64) string {
	p := url.Values{}
	p.Set("lat", coord(lat))
	p.Set("lon", coord(lon))
	return buildURL(s.baseURL, "/current_weather", p)
}

// HourlyURL requests [start, end+1day); last_date is exclusive upstream.
func (s *BrightSky) HourlyURL(lat, lon float64, start, end string) (string, error) {
	last, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return "", err
	}
	p := url.Values{}
	p.Set("lat", coord(lat))
	p.Set("lon", coord(lon))
	p.Set("date", start)
	p.Set("last_date", last.AddDate(0, 0, 1).Format(time.DateOnly))
	p.Set("tz", "Etc/UTC")
	return buildURL(s.baseURL, "/weather", p), nil
}

type bsCurrent struct {
	Timestamp     string `json:"timestamp"`
	Temperature   num    `json:"temperature"`
	Humidity      num    `json:"relative_humidity"`
	Pressure      num    `json:"pressure_msl"`
	WindSpeed     num    `json:"wind_speed_10"`
	WindDirection num    `json:"wind_direction_10"`
	CloudCover    num    `json:"cloud_cover"`
	Visibility    num    `json:"visibility"` // m
	Precipitation num    `json:"precipitation_60"`
	Icon          string `json:"icon"`
}

type bsHour struct {
	Timestamp     string `json:"timestamp"`
	Temperature   num    `json:"temperature"`
	Humidity      num    `json:"relative_humidity"`
	Precipitation num    `json:"precipitation"`
	PrecipProb    num    `json:"precipitation_probability"`
	WindSpeed     num    `json:"wind_speed"`
	WindDirection num    `json:"wind_direction"`
	CloudCover    num    `json:"cloud_cover"`
	Pressure      num    `json:"pressure_msl"`
	Icon          string `json:"icon"`
}

func bsCode(icon string) *int {
	if icon == "" {
		return nil
	}
	return models.Int(brightSkyIcons.Translate(icon))
}

// bsTime converts an RFC 3339 timestamp to the UTC local layout.
func bsTime(ts string) (string, bool) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(localLayout), true
}

func (s *BrightSky) NormalizeCurrent(raw []byte) *models.CurrentConditions {
	var resp struct {
		Weather *bsCurrent `json:"weather"`
	}
	if !decode(raw, &resp) || resp.Weather == nil {
		return nil
	}
	w := resp.Weather

	out := &models.CurrentConditions{
		Temperature:   w.Temperature.ptr(),
		Humidity:      w.Humidity.ptr(),
		Pressure:      w.Pressure.ptr(),
		WindSpeed:     w.WindSpeed.ptr(),
		WindDirection: w.WindDirection.ptr(),
		CloudCover:    w.CloudCover.ptr(),
		Visibility:    w.Visibility.scaled(0.001),
		Precipitation: models.OrZero(w.Precipitation.ptr()),
		WeatherCode:   bsCode(w.Icon),
		Timestamp:     models.NowMillis(),
	}
	if t, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		out.Timestamp = t.UnixMilli()
	}
	describe(out)
	return out
}

// NormalizeDaily returns nil: the provider only serves hourly records.
func (s *BrightSky) NormalizeDaily(raw []byte) []models.DailyRecord {
	return nil
}

func (s *BrightSky) NormalizeHourly(raw []byte) []models.HourlyRecord {
	var resp struct {
		Weather []bsHour `json:"weather"`
	}
	if !decode(raw, &resp) || len(resp.Weather) == 0 {
		return nil
	}

	out := make([]models.HourlyRecord, 0, len(resp.Weather))
	for _, h := range resp.Weather {
		ts, ok := bsTime(h.Timestamp)
		if !ok {
			continue
		}
		out = append(out, models.HourlyRecord{
			Time:                     ts,
			Temperature:              h.Temperature.ptr(),
			Humidity:                 h.Humidity.ptr(),
			Precipitation:            models.OrZero(h.Precipitation.ptr()),
			PrecipitationProbability: h.PrecipProb.ptr(),
			WindSpeed:                h.WindSpeed.ptr(),
			WindDirection:            h.WindDirection.ptr(),
			CloudCover:               h.CloudCover.ptr(),
			Pressure:                 h.Pressure.ptr(),
			WeatherCode:              bsCode(h.Icon),
		})
	}
	return out
}
