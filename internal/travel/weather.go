package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// CurrentWeather is the present conditions at a location.
type CurrentWeather struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	Pressure    int     `json:"pressure"`
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"`
	Timestamp   string  `json:"timestamp"`
}

// ForecastEntry is one 3-hour forecast interval.
type ForecastEntry struct {
	Datetime    string  `json:"datetime"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// WeatherReport combines current conditions with the next 24 hours.
type WeatherReport struct {
	Location    string          `json:"location"`
	Coordinates Coordinates     `json:"coordinates"`
	Current     CurrentWeather  `json:"current"`
	Forecast    []ForecastEntry `json:"forecast"`
}

type openWeatherCurrent struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type openWeatherForecast struct {
	List []openWeatherCurrent `json:"list"`
}

// forecastEntries caps the forecast at the next 24 hours (8 intervals
// of 3 hours).
const forecastEntries = 8

// WeatherForecast geocodes the location and fetches current weather plus
// the short-term forecast from OpenWeather.
func (s *Service) WeatherForecast(ctx context.Context, location string) (*WeatherReport, error) {
	if s.openWeatherKey == "" {
		return nil, fmt.Errorf("weather service not configured")
	}

	coords, err := s.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"lat":   {strconv.FormatFloat(coords.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(coords.Lon, 'f', -1, 64)},
		"appid": {s.openWeatherKey},
		"units": {"metric"},
	}

	var current openWeatherCurrent
	if err := s.getJSON(ctx, s.weatherAPIBase+"/weather?"+query.Encode(), &current); err != nil {
		return nil, fmt.Errorf("current weather: %w", err)
	}
	var forecast openWeatherForecast
	if err := s.getJSON(ctx, s.weatherAPIBase+"/forecast?"+query.Encode(), &forecast); err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}

	report := &WeatherReport{
		Location:    coords.DisplayName,
		Coordinates: *coords,
		Current: CurrentWeather{
			Temperature: current.Main.Temp,
			FeelsLike:   current.Main.FeelsLike,
			Humidity:    current.Main.Humidity,
			Pressure:    current.Main.Pressure,
			Description: weatherDescription(current),
			WindSpeed:   current.Wind.Speed,
			Timestamp:   time.Unix(current.Dt, 0).UTC().Format(time.RFC3339),
		},
	}

	entries := forecast.List
	if len(entries) > forecastEntries {
		entries = entries[:forecastEntries]
	}
	for _, entry := range entries {
		report.Forecast = append(report.Forecast, ForecastEntry{
			Datetime:    time.Unix(entry.Dt, 0).UTC().Format(time.RFC3339),
			Temperature: entry.Main.Temp,
			Description: weatherDescription(entry),
			Humidity:    entry.Main.Humidity,
			WindSpeed:   entry.Wind.Speed,
		})
	}
	return report, nil
}

func weatherDescription(w openWeatherCurrent) string {
	if len(w.Weather) > 0 {
		return w.Weather[0].Description
	}
	return ""
}

func (s *Service) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
