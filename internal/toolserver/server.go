// Package toolserver exposes the travel services as an HTTP tool API
// with a self-describing catalog.
package toolserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nordveg/voyage/internal/observability"
	"github.com/nordveg/voyage/internal/travel"
)

// Response is the uniform envelope for every tool endpoint.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Server serves the travel tool endpoints.
type Server struct {
	echo    *echo.Echo
	service *travel.Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(service *travel.Service, logger *slog.Logger, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		metrics: metrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/tools", s.handleTools)
	s.echo.POST("/weather", s.handleWeather)
	s.echo.POST("/routes", s.handleRoutes)
	s.echo.POST("/plan", s.handlePlan)
	s.echo.GET("/flights", s.handleFlights)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("tool server listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler exposes the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "voyage-toolserver",
		"timestamp": now(),
	})
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
}

func (s *Server) handleTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"tools": []toolDescriptor{
			{
				Name:        "get_weather_forecast",
				Description: "Get current weather and a 24-hour forecast for a location.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}`),
				Endpoint:    "/weather",
				Method:      http.MethodPost,
			},
			{
				Name:        "get_travel_routes",
				Description: "Get the route between two locations.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"origin":{"type":"string"},"destination":{"type":"string"},"mode":{"type":"string"}},"required":["origin","destination"]}`),
				Endpoint:    "/routes",
				Method:      http.MethodPost,
			},
			{
				Name:        "plan_trip",
				Description: "Plan a complete trip with route, weather, and recommendations.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"origin":{"type":"string"},"destination":{"type":"string"},"travel_date":{"type":"string"},"mode":{"type":"string"},"days":{"type":"integer"}},"required":["origin","destination"]}`),
				Endpoint:    "/plan",
				Method:      http.MethodPost,
			},
			{
				Name:        "search_flights",
				Description: "Search for flight offers between two airports.",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"origin":{"type":"string"},"destination":{"type":"string"},"departure_date":{"type":"string"},"adults":{"type":"integer"}},"required":["origin","destination","departure_date"]}`),
				Endpoint:    "/flights",
				Method:      http.MethodGet,
			},
		},
	})
}

func (s *Server) handleWeather(c echo.Context) error {
	var req struct {
		Location string `json:"location"`
	}
	if err := c.Bind(&req); err != nil || req.Location == "" {
		return fail(c, http.StatusBadRequest, "location is required")
	}

	s.logger.Info("weather request", "location", req.Location)
	report, err := s.service.WeatherForecast(c.Request().Context(), req.Location)
	if err != nil {
		return fail(c, http.StatusBadGateway, err.Error())
	}
	return ok(c, report)
}

func (s *Server) handleRoutes(c echo.Context) error {
	var req struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Mode        string `json:"mode"`
	}
	if err := c.Bind(&req); err != nil || req.Origin == "" || req.Destination == "" {
		return fail(c, http.StatusBadRequest, "origin and destination are required")
	}

	s.logger.Info("route request", "origin", req.Origin, "destination", req.Destination, "mode", req.Mode)
	plan, err := s.service.TravelRoutes(c.Request().Context(), req.Origin, req.Destination, req.Mode)
	if err != nil {
		return fail(c, http.StatusBadGateway, err.Error())
	}
	return ok(c, plan)
}

func (s *Server) handlePlan(c echo.Context) error {
	var req struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		TravelDate  string `json:"travel_date"`
		Mode        string `json:"mode"`
		Days        int    `json:"days"`
	}
	if err := c.Bind(&req); err != nil || req.Origin == "" || req.Destination == "" {
		return fail(c, http.StatusBadRequest, "origin and destination are required")
	}

	s.logger.Info("trip plan request", "origin", req.Origin, "destination", req.Destination)
	plan, err := s.service.PlanTrip(c.Request().Context(), req.Origin, req.Destination, req.TravelDate, req.Mode, req.Days)
	if err != nil {
		return fail(c, http.StatusBadGateway, err.Error())
	}
	return ok(c, plan)
}

func (s *Server) handleFlights(c echo.Context) error {
	origin := c.QueryParam("origin")
	destination := c.QueryParam("destination")
	departureDate := c.QueryParam("departure_date")
	if origin == "" || destination == "" || departureDate == "" {
		return fail(c, http.StatusBadRequest, "origin, destination, and departure_date are required")
	}
	adults := 1
	if v := c.QueryParam("adults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			adults = n
		}
	}

	s.logger.Info("flight search request", "origin", origin, "destination", destination, "date", departureDate)
	offers, err := s.service.SearchFlights(c.Request().Context(), origin, destination, departureDate, adults)
	if err != nil {
		return fail(c, http.StatusBadGateway, err.Error())
	}
	return ok(c, offers)
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data, Timestamp: now()})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Response{Success: false, Error: msg, Timestamp: now()})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
