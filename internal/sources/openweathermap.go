package sources

import (
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/weathercode"
)

const (
	openWeatherMapURL        = "https://api.openweathermap.org"
	openWeatherMapHistoryURL = "https://history.openweathermap.org"
	msToKmh                  = 3.6
)

// owmBands maps OpenWeatherMap condition ids onto canonical codes.
var owmBands = weathercode.Bands{
	{Min: 200, Max: 299, Code: 95},
	{Min: 300, Max: 300, Code: 51},
	{Min: 301, Max: 301, Code: 53},
	{Min: 302, Max: 302, Code: 55},
	{Min: 310, Max: 321, Code: 53},
	{Min: 500, Max: 500, Code: 61},
	{Min: 501, Max: 501, Code: 63},
	{Min: 502, Max: 504, Code: 65},
	{Min: 511, Max: 511, Code: 66},
	{Min: 520, Max: 520, Code: 80},
	{Min: 521, Max: 521, Code: 81},
	{Min: 522, Max: 531, Code: 82},
	{Min: 600, Max: 600, Code: 71},
	{Min: 601, Max: 601, Code: 73},
	{Min: 602, Max: 602, Code: 75},
	{Min: 611, Max: 616, Code: 77},
	{Min: 620, Max: 620, Code: 85},
	{Min: 621, Max: 622, Code: 86},
	{Min: 700, Max: 799, Code: 45},
	{Min: 800, Max: 800, Code: 0},
	{Min: 801, Max: 801, Code: 1},
	{Min: 802, Max: 802, Code: 2},
	{Min: 803, Max: 804, Code: 3},
}

// OpenWeatherMap is a credentialed source for current conditions and hourly
// history.
type OpenWeatherMap struct {
	baseURL    string
	historyURL string
}

func NewOpenWeatherMap(baseURL, historyURL string) *OpenWeatherMap {
	return &OpenWeatherMap{
		baseURL:    orDefault(baseURL, openWeatherMapURL),
		historyURL: orDefault(historyURL, openWeatherMapHistoryURL),
	}
}

func (s *OpenWeatherMap) ID() string         { return models.SourceOpenWeatherMap }
func (s *OpenWeatherMap) Credential() string { return models.SourceOpenWeatherMap }

func (s *OpenWeatherMap) Supports(kind models.Kind) bool {
	return kind == models.KindCurrent || kind == models.KindHourly
}

func (s *OpenWeatherMap) Request(kind models.Kind, q Query, key string) (Request, error) {
	if !s.Supports(kind) {
		return Request{}, unsupported(s.ID(), kind)
	}
	if err := requireKey(s.ID(), key); err != nil {
		return Request{}, err
	}
	if kind == models.KindCurrent {
		return Request{URL: s.CurrentURL(q.Lat, q.Lon, key)}, nil
	}
	u, err := s.HourlyURL(q.Lat, q.Lon, q.Start, q.End, key)
	if err != nil {
		return Request{}, err
	}
	return Request{URL: u}, nil
}

func (s *OpenWeatherMap) CurrentURL(lat, lon float64, key string) string {
	p := url.Values{}
	p.Set("lat", coord(lat))
	p.Set("lon", coord(lon))
	p.Set("units", "metric")
	p.Set("appid", key)
	return buildURL(s.baseURL, "/data/2.5/weather", p)
}

// HourlyURL covers start 00:00 UTC through end 23:59:59 UTC.
func (s *OpenWeatherMap) HourlyURL(lat, lon float64, start, end, key string) (string, error) {
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return "", err
	}
	to, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return "", err
	}
	p := url.Values{}
	p.Set("lat", coord(lat))
	p.Set("lon", coord(lon))
	p.Set("type", "hour")
	p.Set("start", strconv.FormatInt(from.Unix(), 10))
	p.Set("end", strconv.FormatInt(to.Add(24*time.Hour-time.Second).Unix(), 10))
	p.Set("units", "metric")
	p.Set("appid", key)
	return buildURL(s.historyURL, "/data/2.5/history/city", p), nil
}

type owmObservation struct {
	Dt   int64 `json:"dt"`
	Main *struct {
		Temp      num `json:"temp"`
		FeelsLike num `json:"feels_like"`
		Humidity  num `json:"humidity"`
		Pressure  num `json:"pressure"`
	} `json:"main"`
	Wind *struct {
		Speed num `json:"speed"`
		Deg   num `json:"deg"`
	} `json:"wind"`
	Clouds *struct {
		All num `json:"all"`
	} `json:"clouds"`
	Visibility num `json:"visibility"`
	Rain       *struct {
		OneHour num `json:"1h"`
	} `json:"rain"`
	Snow *struct {
		OneHour num `json:"1h"`
	} `json:"snow"`
	Weather []struct {
		ID num `json:"id"`
	} `json:"weather"`
}

type owmHistoryResponse struct {
	List []owmObservation `json:"list"`
}

// precipitation sums rain and snow over the last hour.
func (o *owmObservation) precipitation() *float64 {
	total := 0.0
	if o.Rain != nil && o.Rain.OneHour.v != nil {
		total += *o.Rain.OneHour.v
	}
	if o.Snow != nil && o.Snow.OneHour.v != nil {
		total += *o.Snow.OneHour.v
	}
	return models.Float(total)
}

func (o *owmObservation) code() *int {
	if len(o.Weather) == 0 {
		return nil
	}
	id, ok := o.Weather[0].ID.code()
	if !ok {
		return nil
	}
	return models.Int(owmBands.Translate(id))
}

func (s *OpenWeatherMap) NormalizeCurrent(raw []byte) *models.CurrentConditions {
	var obs owmObservation
	if !decode(raw, &obs) || obs.Main == nil {
		return nil
	}

	out := &models.CurrentConditions{
		Temperature:   obs.Main.Temp.ptr(),
		FeelsLike:     obs.Main.FeelsLike.ptr(),
		Humidity:      obs.Main.Humidity.ptr(),
		Pressure:      obs.Main.Pressure.ptr(),
		Visibility:    obs.Visibility.scaled(0.001),
		Precipitation: obs.precipitation(),
		WeatherCode:   obs.code(),
		Timestamp:     models.NowMillis(),
	}
	if obs.Wind != nil {
		out.WindSpeed = obs.Wind.Speed.scaled(msToKmh)
		out.WindDirection = obs.Wind.Deg.ptr()
	}
	if obs.Clouds != nil {
		out.CloudCover = obs.Clouds.All.ptr()
	}
	if obs.Dt > 0 {
		out.Timestamp = obs.Dt * 1000
	}
	describe(out)
	return out
}

// NormalizeDaily returns nil: the provider has no daily history on the plans
// this source targets.
func (s *OpenWeatherMap) NormalizeDaily(raw []byte) []models.DailyRecord {
	return nil
}

func (s *OpenWeatherMap) NormalizeHourly(raw []byte) []models.HourlyRecord {
	var resp owmHistoryResponse
	if !decode(raw, &resp) || len(resp.List) == 0 {
		return nil
	}

	out := make([]models.HourlyRecord, 0, len(resp.List))
	for i := range resp.List {
		obs := &resp.List[i]
		if obs.Dt <= 0 {
			continue
		}
		rec := models.HourlyRecord{
			Time:          utcTime(obs.Dt),
			Precipitation: obs.precipitation(),
			WeatherCode:   obs.code(),
		}
		if obs.Main != nil {
			rec.Temperature = obs.Main.Temp.ptr()
			rec.FeelsLike = obs.Main.FeelsLike.ptr()
			rec.Humidity = obs.Main.Humidity.ptr()
			rec.Pressure = obs.Main.Pressure.ptr()
		}
		if obs.Wind != nil {
			rec.WindSpeed = obs.Wind.Speed.scaled(msToKmh)
			rec.WindDirection = obs.Wind.Deg.ptr()
		}
		if obs.Clouds != nil {
			rec.CloudCover = obs.Clouds.All.ptr()
		}
		out = append(out, rec)
	}
	return out
}
