// Package travel implements the weather, routing, trip planning, and
// flight search services backing the built-in tools.
package travel

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nordveg/voyage/internal/config"
)

// External API endpoints. Overridable for tests.
const (
	defaultWeatherAPIBase   = "https://api.openweathermap.org/data/2.5"
	defaultNominatimAPIBase = "https://nominatim.openstreetmap.org"
	defaultOpenRouteAPIBase = "https://api.openrouteservice.org/v2"
	defaultAmadeusAPIBase   = "https://api.amadeus.com"
)

// Service aggregates the external travel data providers.
type Service struct {
	client *http.Client
	logger *slog.Logger

	weatherAPIBase   string
	nominatimAPIBase string
	openRouteAPIBase string
	amadeusAPIBase   string

	openWeatherKey string
	openRouteKey   string
	amadeusKey     string
	amadeusSecret  string
	userAgent      string

	amadeusToken token
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithBaseURLs overrides the external API endpoints. Empty strings keep
// the defaults.
func WithBaseURLs(weather, nominatim, openRoute, amadeus string) Option {
	return func(s *Service) {
		if weather != "" {
			s.weatherAPIBase = weather
		}
		if nominatim != "" {
			s.nominatimAPIBase = nominatim
		}
		if openRoute != "" {
			s.openRouteAPIBase = openRoute
		}
		if amadeus != "" {
			s.amadeusAPIBase = amadeus
		}
	}
}

func NewService(cfg config.TravelConfig, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		client:           &http.Client{Timeout: 30 * time.Second},
		logger:           logger,
		weatherAPIBase:   defaultWeatherAPIBase,
		nominatimAPIBase: defaultNominatimAPIBase,
		openRouteAPIBase: defaultOpenRouteAPIBase,
		amadeusAPIBase:   defaultAmadeusAPIBase,
		openWeatherKey:   cfg.OpenWeatherAPIKey,
		openRouteKey:     cfg.OpenRouteAPIKey,
		amadeusKey:       cfg.AmadeusAPIKey,
		amadeusSecret:    cfg.AmadeusAPISecret,
		userAgent:        cfg.UserAgent,
	}
	if s.userAgent == "" {
		s.userAgent = "voyage/1.0"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
