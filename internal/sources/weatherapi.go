package sources

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/weathercode"
)

const weatherAPIURL = "https://api.weatherapi.com"

// weatherAPIRules translate free-text condition labels. Order matters: the
// more specific phrase must precede its substring.
var weatherAPIRules = weathercode.KeywordRules{
	{Keyword: "thunder", Code: 95},
	{Keyword: "blizzard", Code: 75},
	{Keyword: "freezing drizzle", Code: 56},
	{Keyword: "freezing rain", Code: 66},
	{Keyword: "ice pellets", Code: 77},
	{Keyword: "sleet", Code: 67},
	{Keyword: "heavy snow", Code: 75},
	{Keyword: "snow", Code: 73},
	{Keyword: "heavy drizzle", Code: 55},
	{Keyword: "drizzle", Code: 51},
	{Keyword: "heavy rain", Code: 65},
	{Keyword: "moderate rain", Code: 63},
	{Keyword: "light rain", Code: 61},
	{Keyword: "patchy rain", Code: 61},
	{Keyword: "shower", Code: 80},
	{Keyword: "rain", Code: 63},
	{Keyword: "fog", Code: 45},
	{Keyword: "mist", Code: 45},
	{Keyword: "overcast", Code: 3},
	{Keyword: "partly cloudy", Code: 2},
	{Keyword: "cloudy", Code: 3},
	{Keyword: "sunny", Code: 0},
	{Keyword: "clear", Code: 0},
}

// WeatherAPI is a credentialed source. Daily and hourly history come from the
// same history.json response.
type WeatherAPI struct {
	baseURL string
}

func NewWeatherAPI(baseURL string) *WeatherAPI {
	return &WeatherAPI{baseURL: orDefault(baseURL, weatherAPIURL)}
}

func (s *WeatherAPI) ID() string                     { return models.SourceWeatherAPI }
func (s *WeatherAPI) Credential() string             { return models.SourceWeatherAPI }
func (s *WeatherAPI) Supports(kind models.Kind) bool { return true }

func (s *WeatherAPI) Request(kind models.Kind, q Query, key string) (Request, error) {
	if err := requireKey(s.ID(), key); err != nil {
		return Request{}, err
	}
	switch kind {
	case models.KindCurrent:
		return Request{URL: s.CurrentURL(q.Lat, q.Lon, key)}, nil
	case models.KindDaily, models.KindHourly:
		return Request{URL: s.HistoryURL(q.Lat, q.Lon, q.Start, q.End, key)}, nil
	}
	return Request{}, unsupported(s.ID(), kind)
}

func (s *WeatherAPI) CurrentURL(lat, lon float64, key string) string {
	p := url.Values{}
	p.Set("key", key)
	p.Set("q", fmt.Sprintf("%s,%s", coord(lat), coord(lon)))
	p.Set("aqi", "no")
	return buildURL(s.baseURL, "/v1/current.json", p)
}

func (s *WeatherAPI) HistoryURL(lat, lon float64, start, end, key string) string {
	p := url.Values{}
	p.Set("key", key)
	p.Set("q", fmt.Sprintf("%s,%s", coord(lat), coord(lon)))
	p.Set("dt", start)
	p.Set("end_dt", end)
	return buildURL(s.baseURL, "/v1/history.json", p)
}

type waCondition struct {
	Text string `json:"text"`
}

type waHour struct {
	Time         string      `json:"time"`
	TimeEpoch    int64       `json:"time_epoch"`
	TempC        num         `json:"temp_c"`
	FeelsLikeC   num         `json:"feelslike_c"`
	Humidity     num         `json:"humidity"`
	PrecipMM     num         `json:"precip_mm"`
	ChanceOfRain num         `json:"chance_of_rain"`
	WindKph      num         `json:"wind_kph"`
	WindDegree   num         `json:"wind_degree"`
	Cloud        num         `json:"cloud"`
	PressureMB   num         `json:"pressure_mb"`
	Condition    waCondition `json:"condition"`
}

type waForecastDay struct {
	Date string `json:"date"`
	Day  *struct {
		MaxTempC          num         `json:"maxtemp_c"`
		MinTempC          num         `json:"mintemp_c"`
		AvgTempC          num         `json:"avgtemp_c"`
		TotalPrecipMM     num         `json:"totalprecip_mm"`
		DailyChanceOfRain num         `json:"daily_chance_of_rain"`
		MaxWindKph        num         `json:"maxwind_kph"`
		AvgHumidity       num         `json:"avghumidity"`
		UV                num         `json:"uv"`
		Condition         waCondition `json:"condition"`
	} `json:"day"`
	Astro *struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"astro"`
	Hour []waHour `json:"hour"`
}

type waResponse struct {
	Current *struct {
		LastUpdatedEpoch int64       `json:"last_updated_epoch"`
		TempC            num         `json:"temp_c"`
		FeelsLikeC       num         `json:"feelslike_c"`
		Humidity         num         `json:"humidity"`
		PressureMB       num         `json:"pressure_mb"`
		WindKph          num         `json:"wind_kph"`
		WindDegree       num         `json:"wind_degree"`
		Cloud            num         `json:"cloud"`
		VisKm            num         `json:"vis_km"`
		UV               num         `json:"uv"`
		PrecipMM         num         `json:"precip_mm"`
		Condition        waCondition `json:"condition"`
	} `json:"current"`
	Forecast *struct {
		ForecastDay []waForecastDay `json:"forecastday"`
	} `json:"forecast"`
}

func waCode(c waCondition) *int {
	if strings.TrimSpace(c.Text) == "" {
		return nil
	}
	return models.Int(weatherAPIRules.Translate(c.Text))
}

// waClock converts a "07:45 AM" clock on date into a local ISO timestamp.
func waClock(date, clock string) *string {
	t, err := time.Parse("03:04 PM", strings.TrimSpace(clock))
	if err != nil {
		return nil
	}
	return models.String(fmt.Sprintf("%sT%02d:%02d:00", date, t.Hour(), t.Minute()))
}

func (s *WeatherAPI) NormalizeCurrent(raw []byte) *models.CurrentConditions {
	var resp waResponse
	if !decode(raw, &resp) || resp.Current == nil {
		return nil
	}
	c := resp.Current

	out := &models.CurrentConditions{
		Temperature:   c.TempC.ptr(),
		FeelsLike:     c.FeelsLikeC.ptr(),
		Humidity:      c.Humidity.ptr(),
		Pressure:      c.PressureMB.ptr(),
		WindSpeed:     c.WindKph.ptr(),
		WindDirection: c.WindDegree.ptr(),
		CloudCover:    c.Cloud.ptr(),
		Visibility:    c.VisKm.ptr(),
		UVIndex:       c.UV.ptr(),
		Precipitation: models.OrZero(c.PrecipMM.ptr()),
		WeatherCode:   waCode(c.Condition),
		Timestamp:     models.NowMillis(),
	}
	if c.LastUpdatedEpoch > 0 {
		out.Timestamp = c.LastUpdatedEpoch * 1000
	}
	describe(out)
	return out
}

func (s *WeatherAPI) forecastDays(raw []byte) []waForecastDay {
	var resp waResponse
	if !decode(raw, &resp) || resp.Forecast == nil {
		return nil
	}
	return resp.Forecast.ForecastDay
}

func (s *WeatherAPI) NormalizeDaily(raw []byte) []models.DailyRecord {
	days := s.forecastDays(raw)
	if len(days) == 0 {
		return nil
	}

	out := make([]models.DailyRecord, 0, len(days))
	for _, fd := range days {
		if fd.Day == nil {
			continue
		}
		date := dateOnly(fd.Date)
		rec := models.DailyRecord{
			Date:                     date,
			TempMax:                  fd.Day.MaxTempC.ptr(),
			TempMin:                  fd.Day.MinTempC.ptr(),
			TempAvg:                  fd.Day.AvgTempC.ptr(),
			PrecipitationSum:         models.OrZero(fd.Day.TotalPrecipMM.ptr()),
			PrecipitationProbability: fd.Day.DailyChanceOfRain.ptr(),
			WindSpeedMax:             fd.Day.MaxWindKph.ptr(),
			HumidityAvg:              fd.Day.AvgHumidity.ptr(),
			UVMax:                    fd.Day.UV.ptr(),
			WeatherCode:              waCode(fd.Day.Condition),
		}
		if rec.TempAvg == nil {
			rec.TempAvg = models.Mean(rec.TempMin, rec.TempMax)
		}
		if fd.Astro != nil {
			rec.Sunrise = waClock(date, fd.Astro.Sunrise)
			rec.Sunset = waClock(date, fd.Astro.Sunset)
		}
		out = append(out, rec)
	}
	return out
}

func (s *WeatherAPI) NormalizeHourly(raw []byte) []models.HourlyRecord {
	days := s.forecastDays(raw)
	if len(days) == 0 {
		return nil
	}

	var out []models.HourlyRecord
	for _, fd := range days {
		for _, h := range fd.Hour {
			if h.Time == "" && h.TimeEpoch <= 0 {
				continue
			}
			key := hourKey(h.Time)
			if h.TimeEpoch > 0 {
				key = utcTime(h.TimeEpoch)
			}
			out = append(out, models.HourlyRecord{
				Time:                     key,
				Temperature:              h.TempC.ptr(),
				FeelsLike:                h.FeelsLikeC.ptr(),
				Humidity:                 h.Humidity.ptr(),
				Precipitation:            models.OrZero(h.PrecipMM.ptr()),
				PrecipitationProbability: h.ChanceOfRain.ptr(),
				WindSpeed:                h.WindKph.ptr(),
				WindDirection:            h.WindDegree.ptr(),
				CloudCover:               h.Cloud.ptr(),
				Pressure:                 h.PressureMB.ptr(),
				WeatherCode:              waCode(h.Condition),
			})
		}
	}
	return out
}
