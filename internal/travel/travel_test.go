package travel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/internal/config"
)

func fakeNominatim(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		switch q := r.URL.Query().Get("q"); q {
		case "Oslo":
			w.Write([]byte(`[{"lat":"59.9133","lon":"10.7389","display_name":"Oslo, Norway"}]`))
		case "Bergen":
			w.Write([]byte(`[{"lat":"60.3913","lon":"5.3221","display_name":"Bergen, Norway"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
}

func newTestService(t *testing.T, cfg config.TravelConfig, opts ...Option) *Service {
	t.Helper()
	return NewService(cfg, slog.Default(), opts...)
}

func TestGeocode(t *testing.T) {
	nominatim := fakeNominatim(t)
	defer nominatim.Close()

	service := newTestService(t, config.TravelConfig{},
		WithBaseURLs("", nominatim.URL, "", ""))

	coords, err := service.Geocode(context.Background(), "Oslo")
	if err != nil {
		t.Fatalf("Geocode failed: %v", err)
	}
	if coords.Lat < 59 || coords.Lat > 61 {
		t.Errorf("unexpected latitude %f", coords.Lat)
	}
	if coords.DisplayName != "Oslo, Norway" {
		t.Errorf("unexpected display name %q", coords.DisplayName)
	}

	if _, err := service.Geocode(context.Background(), "Atlantis"); err == nil {
		t.Errorf("expected error for unknown location")
	}
}

func TestWeatherForecast(t *testing.T) {
	nominatim := fakeNominatim(t)
	defer nominatim.Close()

	weather := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "test-key" {
			t.Errorf("missing api key in request")
		}
		switch r.URL.Path {
		case "/weather":
			w.Write([]byte(`{"dt":1756036800,"main":{"temp":12.3,"feels_like":10.1,"humidity":80,"pressure":1003},"weather":[{"description":"light rain"}],"wind":{"speed":4.2}}`))
		case "/forecast":
			var entries []string
			for i := 0; i < 12; i++ {
				entries = append(entries, `{"dt":1756036800,"main":{"temp":11,"humidity":82},"weather":[{"description":"rain"}],"wind":{"speed":5}}`)
			}
			w.Write([]byte(`{"list":[` + strings.Join(entries, ",") + `]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer weather.Close()

	service := newTestService(t, config.TravelConfig{OpenWeatherAPIKey: "test-key"},
		WithBaseURLs(weather.URL, nominatim.URL, "", ""))

	report, err := service.WeatherForecast(context.Background(), "Oslo")
	if err != nil {
		t.Fatalf("WeatherForecast failed: %v", err)
	}
	if report.Current.Temperature != 12.3 {
		t.Errorf("unexpected temperature %f", report.Current.Temperature)
	}
	if report.Current.Description != "light rain" {
		t.Errorf("unexpected description %q", report.Current.Description)
	}
	if len(report.Forecast) != 8 {
		t.Errorf("forecast must be capped at 8 intervals, got %d", len(report.Forecast))
	}
}

func TestWeatherForecastRequiresKey(t *testing.T) {
	service := newTestService(t, config.TravelConfig{})
	if _, err := service.WeatherForecast(context.Background(), "Oslo"); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestTravelRoutesWithDirectionsAPI(t *testing.T) {
	nominatim := fakeNominatim(t)
	defer nominatim.Close()

	openRoute := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/directions/driving-car") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "route-key" {
			t.Errorf("missing authorization header")
		}
		w.Write([]byte(`{"routes":[{"summary":{"distance":463000,"duration":25200},"segments":[{"steps":[{"instruction":"Head west on E16"},{"instruction":"Continue onto E39"}]}]}]}`))
	}))
	defer openRoute.Close()

	service := newTestService(t, config.TravelConfig{OpenRouteAPIKey: "route-key"},
		WithBaseURLs("", nominatim.URL, openRoute.URL, ""))

	plan, err := service.TravelRoutes(context.Background(), "Oslo", "Bergen", "driving")
	if err != nil {
		t.Fatalf("TravelRoutes failed: %v", err)
	}
	if plan.Route.DistanceKm != 463.0 {
		t.Errorf("unexpected distance %f", plan.Route.DistanceKm)
	}
	if plan.Route.DurationHours != 7.0 {
		t.Errorf("unexpected duration %f", plan.Route.DurationHours)
	}
	if len(plan.Route.Instructions) != 2 {
		t.Errorf("expected 2 instructions, got %d", len(plan.Route.Instructions))
	}
}

func TestTravelRoutesFallsBackToAirDistance(t *testing.T) {
	nominatim := fakeNominatim(t)
	defer nominatim.Close()

	// No routing key configured: must estimate from air distance.
	service := newTestService(t, config.TravelConfig{},
		WithBaseURLs("", nominatim.URL, "", ""))

	plan, err := service.TravelRoutes(context.Background(), "Oslo", "Bergen", "driving")
	if err != nil {
		t.Fatalf("TravelRoutes failed: %v", err)
	}
	if plan.Route.Note == "" {
		t.Errorf("fallback route should carry an estimate note")
	}
	// Oslo-Bergen air distance is roughly 305 km.
	if plan.Route.AirDistanceKm < 280 || plan.Route.AirDistanceKm > 330 {
		t.Errorf("implausible air distance %f", plan.Route.AirDistanceKm)
	}
	if plan.Route.DistanceKm <= plan.Route.AirDistanceKm {
		t.Errorf("road estimate must exceed air distance: %f <= %f", plan.Route.DistanceKm, plan.Route.AirDistanceKm)
	}
}

func TestEstimateRouteSpeeds(t *testing.T) {
	origin := &Coordinates{Lat: 59.9133, Lon: 10.7389}
	dest := &Coordinates{Lat: 60.3913, Lon: 5.3221}

	driving := estimateRoute(origin, dest, "driving")
	walking := estimateRoute(origin, dest, "walking")
	if walking.DurationHours <= driving.DurationHours {
		t.Errorf("walking must be slower than driving: %f <= %f", walking.DurationHours, driving.DurationHours)
	}
	unknown := estimateRoute(origin, dest, "teleport")
	if unknown.DurationHours != driving.DurationHours {
		t.Errorf("unknown mode should use driving speed")
	}
}

func TestBuildRecommendations(t *testing.T) {
	cases := []struct {
		name    string
		weather *WeatherReport
		route   Route
		want    []string
	}{
		{
			name:    "freezing with snow",
			weather: &WeatherReport{Current: CurrentWeather{Temperature: -5, Description: "snow"}},
			want:    []string{"below 0", "snow"},
		},
		{
			name:    "cold rain",
			weather: &WeatherReport{Current: CurrentWeather{Temperature: 8, Description: "light rain"}},
			want:    []string{"warm jacket", "umbrella"},
		},
		{
			name:    "hot",
			weather: &WeatherReport{Current: CurrentWeather{Temperature: 28, Description: "clear sky"}},
			want:    []string{"Light clothing"},
		},
		{
			name:  "long drive",
			route: Route{DurationHours: 9},
			want:  []string{"overnight"},
		},
		{
			name:  "medium drive",
			route: Route{DurationHours: 5},
			want:  []string{"break"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recommendations := buildRecommendations(tc.weather, tc.route)
			joined := strings.Join(recommendations, " | ")
			for _, want := range tc.want {
				if !strings.Contains(joined, want) {
					t.Errorf("missing %q in recommendations: %s", want, joined)
				}
			}
		})
	}
}

func TestSearchFlights(t *testing.T) {
	var tokenRequests int
	amadeus := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/security/oauth2/token":
			tokenRequests++
			if r.FormValue("grant_type") != "client_credentials" {
				t.Errorf("unexpected grant type %q", r.FormValue("grant_type"))
			}
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 1799})
		case "/v2/shopping/flight-offers":
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("missing bearer token")
			}
			if r.URL.Query().Get("originLocationCode") != "OSL" {
				t.Errorf("unexpected origin %q", r.URL.Query().Get("originLocationCode"))
			}
			w.Write([]byte(`{"data":[{"price":{"total":"1250.00","currency":"NOK"},"itineraries":[{"segments":[{"carrierCode":"DY","number":"602","departure":{"iataCode":"OSL","at":"2026-09-20T08:00:00"},"arrival":{"iataCode":"BGO","at":"2026-09-20T08:55:00"}}]}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer amadeus.Close()

	service := newTestService(t, config.TravelConfig{AmadeusAPIKey: "id", AmadeusAPISecret: "secret"},
		WithBaseURLs("", "", "", amadeus.URL))

	offers, err := service.SearchFlights(context.Background(), "osl", "bgo", "2026-09-20", 1)
	if err != nil {
		t.Fatalf("SearchFlights failed: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	if offers[0].Price != "1250.00" || offers[0].Currency != "NOK" {
		t.Errorf("unexpected price: %+v", offers[0])
	}
	if offers[0].Segments[0].Carrier != "DY" {
		t.Errorf("unexpected segment: %+v", offers[0].Segments[0])
	}

	// Second search reuses the cached token.
	if _, err := service.SearchFlights(context.Background(), "OSL", "BGO", "2026-09-21", 1); err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if tokenRequests != 1 {
		t.Errorf("expected 1 token request, got %d", tokenRequests)
	}
}

func TestToolsRegistration(t *testing.T) {
	service := newTestService(t, config.TravelConfig{})
	registry := agent.NewToolRegistry()
	RegisterTools(service, registry)

	for _, name := range []string{"get_weather_forecast", "get_travel_routes", "plan_trip", "search_flights"} {
		tool, ok := registry.Get(name)
		if !ok {
			t.Errorf("tool %s not registered", name)
			continue
		}
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			t.Errorf("tool %s schema invalid: %v", name, err)
		}
	}
}
