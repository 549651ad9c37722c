package sources

import (
	"fmt"
	"net/url"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/weathercode"
)

const visualCrossingURL = "https://weather.visualcrossing.com"

var visualCrossingIcons = weathercode.IconTable{
	"snow":                  73,
	"snow-showers-day":      85,
	"snow-showers-night":    85,
	"thunder-rain":          95,
	"thunder-showers-day":   95,
	"thunder-showers-night": 95,
	"rain":                  63,
	"showers-day":           80,
	"showers-night":         80,
	"sleet":                 67,
	"hail":                  96,
	"fog":                   45,
	"wind":                  3,
	"cloudy":                3,
	"partly-cloudy-day":     2,
	"partly-cloudy-night":   2,
	"clear-day":             0,
	"clear-night":           0,
}

// VisualCrossing is a credentialed timeline API serving all request kinds.
type VisualCrossing struct {
	baseURL string
}

func NewVisualCrossing(baseURL string) *VisualCrossing {
	return &VisualCrossing{baseURL: orDefault(baseURL, visualCrossingURL)}
}

func (s *VisualCrossing) ID() string                     { return models.SourceVisualCrossing }
func (s *VisualCrossing) Credential() string             { return models.SourceVisualCrossing }
func (s *VisualCrossing) Supports(kind models.Kind) bool { return true }

func (s *VisualCrossing) Request(kind models.Kind, q Query, key string) (Request, error) {
	if err := requireKey(s.ID(), key); err != nil {
		return Request{}, err
	}
	switch kind {
	case models.KindCurrent:
		return Request{URL: s.CurrentURL(q.Lat, q.Lon, key)}, nil
	case models.KindDaily:
		return Request{URL: s.DailyURL(q.Lat, q.Lon, q.Start, q.End, key)}, nil
	case models.KindHourly:
		return Request{URL: s.HourlyURL(q.Lat, q.Lon, q.Start, q.End, key)}, nil
	}
	return Request{}, unsupported(s.ID(), kind)
}

func (s *VisualCrossing) CurrentURL(lat, lon float64, key string) string {
	return s.timeline(lat, lon, "", "", "current", key)
}

func (s *VisualCrossing) DailyURL(lat, lon float64, start, end, key string) string {
	return s.timeline(lat, lon, start, end, "days", key)
}

func (s *VisualCrossing) HourlyURL(lat, lon float64, start, end, key string) string {
	return s.timeline(lat, lon, start, end, "hours", key)
}

func (s *VisualCrossing) timeline(lat, lon float64, start, end, include, key string) string {
	path := fmt.Sprintf("/VisualCrossingWebServices/rest/services/timeline/%s,%s", coord(lat), coord(lon))
	if start != "" && end != "" {
		path += "/" + start + "/" + end
	}
	p := url.Values{}
	p.Set("unitGroup", "metric")
	p.Set("include", include)
	p.Set("contentType", "json")
	p.Set("key", key)
	return buildURL(s.baseURL, path, p)
}

type vcHour struct {
	Datetime      string `json:"datetime"`
	DatetimeEpoch int64  `json:"datetimeEpoch"`
	Temp          num    `json:"temp"`
	FeelsLike     num    `json:"feelslike"`
	Humidity      num    `json:"humidity"`
	Precip        num    `json:"precip"`
	PrecipProb    num    `json:"precipprob"`
	WindSpeed     num    `json:"windspeed"`
	WindDir       num    `json:"winddir"`
	CloudCover    num    `json:"cloudcover"`
	Pressure      num    `json:"pressure"`
	Icon          string `json:"icon"`
}

type vcDay struct {
	Datetime   string   `json:"datetime"`
	TempMax    num      `json:"tempmax"`
	TempMin    num      `json:"tempmin"`
	Temp       num      `json:"temp"`
	Precip     num      `json:"precip"`
	PrecipProb num      `json:"precipprob"`
	WindSpeed  num      `json:"windspeed"`
	Humidity   num      `json:"humidity"`
	UVIndex    num      `json:"uvindex"`
	Sunrise    string   `json:"sunrise"`
	Sunset     string   `json:"sunset"`
	Icon       string   `json:"icon"`
	Hours      []vcHour `json:"hours"`
}

type vcResponse struct {
	CurrentConditions *struct {
		DatetimeEpoch int64  `json:"datetimeEpoch"`
		Temp          num    `json:"temp"`
		FeelsLike     num    `json:"feelslike"`
		Humidity      num    `json:"humidity"`
		Pressure      num    `json:"pressure"`
		WindSpeed     num    `json:"windspeed"`
		WindDir       num    `json:"winddir"`
		CloudCover    num    `json:"cloudcover"`
		Visibility    num    `json:"visibility"`
		UVIndex       num    `json:"uvindex"`
		Precip        num    `json:"precip"`
		Icon          string `json:"icon"`
	} `json:"currentConditions"`
	Days     []vcDay `json:"days"`
	TZOffset num     `json:"tzoffset"` // hours
}

func vcCode(icon string) *int {
	if icon == "" {
		return nil
	}
	return models.Int(visualCrossingIcons.Translate(icon))
}

// vcClock joins a date with an "HH:MM:SS" clock; nil when the clock is empty.
func vcClock(date, clock string) *string {
	if clock == "" {
		return nil
	}
	return models.String(date + "T" + clock)
}

func (s *VisualCrossing) NormalizeCurrent(raw []byte) *models.CurrentConditions {
	var resp vcResponse
	if !decode(raw, &resp) || resp.CurrentConditions == nil {
		return nil
	}
	c := resp.CurrentConditions

	out := &models.CurrentConditions{
		Temperature:   c.Temp.ptr(),
		FeelsLike:     c.FeelsLike.ptr(),
		Humidity:      c.Humidity.ptr(),
		Pressure:      c.Pressure.ptr(),
		WindSpeed:     c.WindSpeed.ptr(),
		WindDirection: c.WindDir.ptr(),
		CloudCover:    c.CloudCover.ptr(),
		Visibility:    c.Visibility.ptr(),
		UVIndex:       c.UVIndex.ptr(),
		Precipitation: models.OrZero(c.Precip.ptr()),
		WeatherCode:   vcCode(c.Icon),
		Timestamp:     models.NowMillis(),
	}
	if c.DatetimeEpoch > 0 {
		out.Timestamp = c.DatetimeEpoch * 1000
	}
	describe(out)
	return out
}

func (s *VisualCrossing) NormalizeDaily(raw []byte) []models.DailyRecord {
	var resp vcResponse
	if !decode(raw, &resp) || len(resp.Days) == 0 {
		return nil
	}

	out := make([]models.DailyRecord, 0, len(resp.Days))
	for _, d := range resp.Days {
		date := dateOnly(d.Datetime)
		rec := models.DailyRecord{
			Date:                     date,
			TempMax:                  d.TempMax.ptr(),
			TempMin:                  d.TempMin.ptr(),
			TempAvg:                  d.Temp.ptr(),
			PrecipitationSum:         models.OrZero(d.Precip.ptr()),
			PrecipitationProbability: d.PrecipProb.ptr(),
			WindSpeedMax:             d.WindSpeed.ptr(),
			HumidityAvg:              d.Humidity.ptr(),
			UVMax:                    d.UVIndex.ptr(),
			WeatherCode:              vcCode(d.Icon),
			Sunrise:                  vcClock(date, d.Sunrise),
			Sunset:                   vcClock(date, d.Sunset),
		}
		if rec.TempAvg == nil {
			rec.TempAvg = models.Mean(rec.TempMin, rec.TempMax)
		}
		out = append(out, rec)
	}
	return out
}

func (s *VisualCrossing) NormalizeHourly(raw []byte) []models.HourlyRecord {
	var resp vcResponse
	if !decode(raw, &resp) || len(resp.Days) == 0 {
		return nil
	}

	offset := 0
	if tz := resp.TZOffset.ptr(); tz != nil {
		offset = int(*tz * 3600)
	}
	var out []models.HourlyRecord
	for _, d := range resp.Days {
		date := dateOnly(d.Datetime)
		for _, h := range d.Hours {
			if h.Datetime == "" {
				continue
			}
			key := hourKeyUTC(date+"T"+h.Datetime, offset)
			if h.DatetimeEpoch > 0 {
				key = utcTime(h.DatetimeEpoch)
			}
			out = append(out, models.HourlyRecord{
				Time:                     key,
				Temperature:              h.Temp.ptr(),
				FeelsLike:                h.FeelsLike.ptr(),
				Humidity:                 h.Humidity.ptr(),
				Precipitation:            models.OrZero(h.Precip.ptr()),
				PrecipitationProbability: h.PrecipProb.ptr(),
				WindSpeed:                h.WindSpeed.ptr(),
				WindDirection:            h.WindDir.ptr(),
				CloudCover:               h.CloudCover.ptr(),
				Pressure:                 h.Pressure.ptr(),
				WeatherCode:              vcCode(h.Icon),
			})
		}
	}
	return out
}
