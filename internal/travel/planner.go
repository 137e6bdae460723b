package travel

import (
	"context"
	"strings"
	"time"
)

// TripPlan is a complete plan: route, destination weather, and packing
// or driving recommendations.
type TripPlan struct {
	Summary         TripSummary    `json:"trip_summary"`
	Route           Route          `json:"route"`
	Weather         *WeatherReport `json:"weather,omitempty"`
	WeatherNote     string         `json:"weather_note,omitempty"`
	Recommendations []string       `json:"recommendations"`
}

type TripSummary struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	TravelDate    string `json:"travel_date"`
	DurationDays  int    `json:"duration_days"`
	TransportMode string `json:"transport_mode"`
}

// PlanTrip combines routing and destination weather into a trip plan.
// Weather failures degrade to a note; routing failures fail the plan.
func (s *Service) PlanTrip(ctx context.Context, origin, destination, travelDate, mode string, days int) (*TripPlan, error) {
	if mode == "" {
		mode = "driving"
	}
	if days <= 0 {
		days = 1
	}

	routePlan, err := s.TravelRoutes(ctx, origin, destination, mode)
	if err != nil {
		return nil, err
	}

	plan := &TripPlan{
		Summary: TripSummary{
			Origin:        origin,
			Destination:   destination,
			TravelDate:    parseTravelDate(travelDate),
			DurationDays:  days,
			TransportMode: mode,
		},
		Route:           routePlan.Route,
		Recommendations: []string{},
	}

	weather, err := s.WeatherForecast(ctx, destination)
	if err != nil {
		s.logger.Warn("weather unavailable for trip plan",
			"destination", destination,
			"error", err)
		plan.WeatherNote = "weather data unavailable"
	} else {
		plan.Weather = weather
	}

	plan.Recommendations = buildRecommendations(weather, plan.Route)
	return plan, nil
}

func parseTravelDate(travelDate string) string {
	if travelDate == "" {
		return time.Now().UTC().Format(time.RFC3339)
	}
	parsed, err := time.Parse(time.RFC3339, travelDate)
	if err != nil {
		if parsed, err = time.Parse("2006-01-02", travelDate); err != nil {
			return time.Now().UTC().Format(time.RFC3339)
		}
	}
	return parsed.Format(time.RFC3339)
}

func buildRecommendations(weather *WeatherReport, route Route) []string {
	recommendations := []string{}

	if weather != nil {
		temp := weather.Current.Temperature
		desc := strings.ToLower(weather.Current.Description)

		switch {
		case temp < 0:
			recommendations = append(recommendations, "Pack warm clothes - it is below 0°C")
		case temp < 10:
			recommendations = append(recommendations, "Pack a warm jacket - it is cold")
		case temp > 25:
			recommendations = append(recommendations, "Light clothing recommended - it is warm")
		}

		if strings.Contains(desc, "rain") || strings.Contains(desc, "regn") {
			recommendations = append(recommendations, "Bring an umbrella - rain in the forecast")
		} else if strings.Contains(desc, "snow") || strings.Contains(desc, "snø") {
			recommendations = append(recommendations, "Drive carefully - snow in the forecast")
		}
	}

	if route.DurationHours > 8 {
		recommendations = append(recommendations, "Consider an overnight stop - long journey")
	} else if route.DurationHours > 4 {
		recommendations = append(recommendations, "Plan a break along the way")
	}

	return recommendations
}
