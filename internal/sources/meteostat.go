package sources

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/retry"
)

const (
	meteostatURL  = "https://meteostat.p.rapidapi.com"
	meteostatHost = "meteostat.p.rapidapi.com"
)

// MeteostatHistory is the batch daily-history fallback used when no regular
// source returns daily data.
type MeteostatHistory struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
	retry   retry.Options
}

// NewMeteostatHistory returns ErrMissingCredential when apiKey is empty.
func NewMeteostatHistory(fetcher *Fetcher, baseURL, apiKey string, opts retry.Options) (*MeteostatHistory, error) {
	if err := requireKey(models.SourceMeteostat, apiKey); err != nil {
		return nil, err
	}
	return &MeteostatHistory{
		fetcher: fetcher,
		baseURL: orDefault(baseURL, meteostatURL),
		apiKey:  apiKey,
		retry:   opts,
	}, nil
}

func (m *MeteostatHistory) request(lat, lon float64, start, end string) Request {
	p := url.Values{}
	p.Set("lat", coord(lat))
	p.Set("lon", coord(lon))
	p.Set("start", start)
	p.Set("end", end)
	h := http.Header{}
	h.Set("X-RapidAPI-Key", m.apiKey)
	h.Set("X-RapidAPI-Host", meteostatHost)
	return Request{URL: buildURL(m.baseURL, "/point/daily", p), Header: h}
}

// DailyHistory fetches and normalizes daily records for the inclusive range.
func (m *MeteostatHistory) DailyHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.DailyRecord, error) {
	req := m.request(lat, lon, start, end)
	raw, err := retry.Do(ctx, models.SourceMeteostat, func(ctx context.Context) ([]byte, error) {
		return m.fetcher.Get(ctx, models.SourceMeteostat, req)
	}, m.retry)
	if err != nil {
		return nil, err
	}
	return NormalizeMeteostatDaily(raw), nil
}

type meteostatResponse struct {
	Data []struct {
		Date string `json:"date"`
		TAvg num    `json:"tavg"`
		TMin num    `json:"tmin"`
		TMax num    `json:"tmax"`
		Prcp num    `json:"prcp"`
		Tsun num    `json:"tsun"` // minutes
	} `json:"data"`
}

// NormalizeMeteostatDaily converts a point/daily body. Weather codes are not
// provided upstream and stay nil. Only the daily mean wind speed (wspd) is
// published, so WindSpeedMax stays nil as well.
func NormalizeMeteostatDaily(raw []byte) []models.DailyRecord {
	var resp meteostatResponse
	if !decode(raw, &resp) || len(resp.Data) == 0 {
		return nil
	}

	out := make([]models.DailyRecord, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.Date == "" {
			continue
		}
		rec := models.DailyRecord{
			Date:             dateOnly(d.Date),
			TempMin:          d.TMin.ptr(),
			TempMax:          d.TMax.ptr(),
			TempAvg:          d.TAvg.ptr(),
			PrecipitationSum: models.OrZero(d.Prcp.ptr()),
			SunshineHours:    d.Tsun.scaled(1.0 / 60),
			Sources:          []string{models.SourceMeteostat},
		}
		if rec.TempAvg == nil {
			rec.TempAvg = models.Mean(rec.TempMin, rec.TempMax)
		}
		out = append(out, rec)
	}
	return out
}
