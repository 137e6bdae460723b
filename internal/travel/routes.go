package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

// Route describes the path between two locations.
type Route struct {
	DistanceKm    float64  `json:"distance_km"`
	DurationHours float64  `json:"duration_hours"`
	Instructions  []string `json:"instructions,omitempty"`
	Note          string   `json:"note,omitempty"`
	AirDistanceKm float64  `json:"air_distance_km,omitempty"`
}

// RoutePlan is the full routing result for a trip leg.
type RoutePlan struct {
	Origin      RouteEndpoint `json:"origin"`
	Destination RouteEndpoint `json:"destination"`
	Mode        string        `json:"mode"`
	Route       Route         `json:"route"`
}

type RouteEndpoint struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

type openRouteResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
		Segments []struct {
			Steps []struct {
				Instruction string `json:"instruction"`
			} `json:"steps"`
		} `json:"segments"`
	} `json:"routes"`
}

var modeProfiles = map[string]string{
	"driving": "driving-car",
	"walking": "foot-walking",
	"cycling": "cycling-regular",
}

// Average speeds in km/h for the air-distance fallback estimate.
var modeSpeeds = map[string]float64{
	"driving": 80,
	"walking": 5,
	"cycling": 20,
}

// TravelRoutes geocodes both endpoints and asks OpenRouteService for
// directions. When the routing API is unavailable it falls back to an
// air-distance estimate.
func (s *Service) TravelRoutes(ctx context.Context, origin, destination, mode string) (*RoutePlan, error) {
	if mode == "" {
		mode = "driving"
	}

	originCoords, err := s.Geocode(ctx, origin)
	if err != nil {
		return nil, err
	}
	destCoords, err := s.Geocode(ctx, destination)
	if err != nil {
		return nil, err
	}

	plan := &RoutePlan{
		Origin:      RouteEndpoint{Name: origin, Coordinates: *originCoords},
		Destination: RouteEndpoint{Name: destination, Coordinates: *destCoords},
		Mode:        mode,
	}

	if s.openRouteKey != "" {
		route, err := s.directions(ctx, originCoords, destCoords, mode)
		if err == nil {
			plan.Route = *route
			return plan, nil
		}
		s.logger.Warn("routing API unavailable, using air-distance estimate",
			"origin", origin,
			"destination", destination,
			"error", err)
	}

	plan.Route = estimateRoute(originCoords, destCoords, mode)
	return plan, nil
}

func (s *Service) directions(ctx context.Context, origin, dest *Coordinates, mode string) (*Route, error) {
	profile, ok := modeProfiles[mode]
	if !ok {
		profile = "driving-car"
	}

	body, err := json.Marshal(map[string]any{
		"coordinates": [][]float64{
			{origin.Lon, origin.Lat},
			{dest.Lon, dest.Lat},
		},
		"format": "json",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/directions/%s/json", s.openRouteAPIBase, profile),
		bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", s.openRouteKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions: status %d", resp.StatusCode)
	}

	var routeResp openRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routeResp); err != nil {
		return nil, fmt.Errorf("directions: decode: %w", err)
	}
	if len(routeResp.Routes) == 0 {
		return nil, fmt.Errorf("directions: no routes returned")
	}

	best := routeResp.Routes[0]
	route := &Route{
		DistanceKm:    round1(best.Summary.Distance / 1000),
		DurationHours: round1(best.Summary.Duration / 3600),
	}
	if len(best.Segments) > 0 {
		for _, step := range best.Segments[0].Steps {
			route.Instructions = append(route.Instructions, step.Instruction)
		}
	}
	return route, nil
}

// estimateRoute approximates road distance and travel time from the
// great-circle distance: +30% for real road distance, +50% for realistic
// travel time at the mode's average speed.
func estimateRoute(origin, dest *Coordinates, mode string) Route {
	airDistance := haversineKm(origin.Lat, origin.Lon, dest.Lat, dest.Lon)

	speed, ok := modeSpeeds[mode]
	if !ok {
		speed = modeSpeeds["driving"]
	}

	return Route{
		DistanceKm:    round1(airDistance * 1.3),
		DurationHours: round1(airDistance / speed * 1.5),
		Note:          "estimated from air distance",
		AirDistanceKm: round1(airDistance),
	}
}

const earthRadiusKm = 6371

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	return earthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
