package travel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/pkg/models"
)

// RegisterTools registers the built-in travel tools on the registry.
func RegisterTools(service *Service, registry *agent.ToolRegistry) {
	registry.Register(&weatherTool{service})
	registry.Register(&routesTool{service})
	registry.Register(&planTool{service})
	registry.Register(&flightsTool{service})
}

type weatherTool struct{ service *Service }

func (t *weatherTool) Name() string { return "get_weather_forecast" }
func (t *weatherTool) Description() string {
	return "Get current weather and a 24-hour forecast for a location. Takes a free-text location name."
}
func (t *weatherTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string", "description": "City or place name, e.g. 'Oslo'"}
		},
		"required": ["location"]
	}`)
}

func (t *weatherTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	report, err := t.service.WeatherForecast(ctx, args.Location)
	if err != nil {
		return errorText(err), nil
	}
	return jsonResult(report)
}

type routesTool struct{ service *Service }

func (t *routesTool) Name() string { return "get_travel_routes" }
func (t *routesTool) Description() string {
	return "Get the route between two locations: distance, travel time, and turn-by-turn instructions when available."
}
func (t *routesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"origin": {"type": "string", "description": "Starting location"},
			"destination": {"type": "string", "description": "Destination location"},
			"mode": {"type": "string", "enum": ["driving", "walking", "cycling"], "description": "Transport mode, default driving"}
		},
		"required": ["origin", "destination"]
	}`)
}

func (t *routesTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Mode        string `json:"mode"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	plan, err := t.service.TravelRoutes(ctx, args.Origin, args.Destination, args.Mode)
	if err != nil {
		return errorText(err), nil
	}
	return jsonResult(plan)
}

type planTool struct{ service *Service }

func (t *planTool) Name() string { return "plan_trip" }
func (t *planTool) Description() string {
	return "Plan a complete trip: route, destination weather, and packing or driving recommendations."
}
func (t *planTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"origin": {"type": "string", "description": "Starting location"},
			"destination": {"type": "string", "description": "Destination location"},
			"travel_date": {"type": "string", "description": "Travel date, ISO 8601 or YYYY-MM-DD"},
			"mode": {"type": "string", "enum": ["driving", "walking", "cycling"], "description": "Transport mode, default driving"},
			"days": {"type": "integer", "minimum": 1, "description": "Trip length in days, default 1"}
		},
		"required": ["origin", "destination"]
	}`)
}

func (t *planTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		TravelDate  string `json:"travel_date"`
		Mode        string `json:"mode"`
		Days        int    `json:"days"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	plan, err := t.service.PlanTrip(ctx, args.Origin, args.Destination, args.TravelDate, args.Mode, args.Days)
	if err != nil {
		return errorText(err), nil
	}
	return jsonResult(plan)
}

type flightsTool struct{ service *Service }

func (t *flightsTool) Name() string { return "search_flights" }
func (t *flightsTool) Description() string {
	return "Search for flight offers between two airports on a given date. Takes IATA airport codes."
}
func (t *flightsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"origin": {"type": "string", "description": "Origin IATA airport code, e.g. 'OSL'"},
			"destination": {"type": "string", "description": "Destination IATA airport code, e.g. 'BGO'"},
			"departure_date": {"type": "string", "description": "Departure date, YYYY-MM-DD"},
			"adults": {"type": "integer", "minimum": 1, "description": "Number of adult passengers, default 1"}
		},
		"required": ["origin", "destination", "departure_date"]
	}`)
}

func (t *flightsTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Origin        string `json:"origin"`
		Destination   string `json:"destination"`
		DepartureDate string `json:"departure_date"`
		Adults        int    `json:"adults"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	offers, err := t.service.SearchFlights(ctx, args.Origin, args.Destination, args.DepartureDate, args.Adults)
	if err != nil {
		return errorText(err), nil
	}
	if len(offers) == 0 {
		return &models.ToolResult{Content: "No flight offers found."}, nil
	}
	return jsonResult(offers)
}

func jsonResult(v any) (*models.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &models.ToolResult{Content: string(data)}, nil
}

func errorText(err error) *models.ToolResult {
	return &models.ToolResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}
}
