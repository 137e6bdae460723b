// Package gateway serves the conversational agent HTTP API.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/internal/observability"
	"github.com/nordveg/voyage/internal/sessions"
	"github.com/nordveg/voyage/pkg/models"
)

// Server wires the runtime and session store into HTTP handlers. All
// dependencies are passed in explicitly; there is no package-level
// state.
type Server struct {
	echo    *echo.Echo
	runtime *agent.Runtime
	store   sessions.Store
	logger  *slog.Logger
	metrics *observability.Metrics

	defaultOwner string
	turnTimeout  time.Duration
	historyLimit int
}

// Options configures the gateway server.
type Options struct {
	DefaultOwner string
	TurnTimeout  time.Duration
	// HistoryLimit caps how many messages the history endpoint returns
	// when the request does not specify its own limit.
	HistoryLimit int
}

func New(runtime *agent.Runtime, store sessions.Store, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if opts.DefaultOwner == "" {
		opts.DefaultOwner = "default"
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 2 * time.Minute
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}

	s := &Server{
		echo:         e,
		runtime:      runtime,
		store:        store,
		logger:       logger,
		metrics:      metrics,
		defaultOwner: opts.DefaultOwner,
		turnTimeout:  opts.TurnTimeout,
		historyLimit: opts.HistoryLimit,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/query", s.handleQuery)
	s.echo.GET("/sessions", s.handleListSessions)
	s.echo.GET("/sessions/:id/history", s.handleHistory)
	s.echo.GET("/stats", s.handleStats)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", addr)
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
		"status":  "healthy",
		"service": "voyage-gateway",
	})
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	OwnerID   string `json:"owner_id"`
	Query     string `json:"query"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.OwnerID == "" {
		req.OwnerID = s.defaultOwner
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.turnTimeout)
	defer cancel()

	result, err := s.runtime.ProcessQuery(ctx, req.SessionID, req.OwnerID, req.Query)
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, agent.ErrToolLoopExceeded):
		// The transcript is persisted; tell the client the turn was cut off.
		return c.JSON(http.StatusOK, map[string]any{
			"session_id": result.SessionID,
			"reply":      "I could not finish answering within the allowed number of tool steps. Please try a narrower question.",
			"truncated":  true,
		})
	case errors.Is(err, agent.ErrModelRequest):
		return c.JSON(http.StatusBadGateway, map[string]any{
			"session_id": result.SessionID,
			"reply":      result.Reply,
		})
	case err != nil:
		s.logger.Error("query failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleListSessions(c echo.Context) error {
	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		ownerID = s.defaultOwner
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	summaries, err := s.store.ListSessions(c.Request().Context(), ownerID, limit)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if summaries == nil {
		summaries = []*models.SessionSummary{}
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": summaries})
}

func (s *Server) handleHistory(c echo.Context) error {
	sessionID := c.Param("id")
	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		ownerID = s.defaultOwner
	}
	limit := s.historyLimit
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := s.store.GetHistory(c.Request().Context(), sessionID, ownerID, limit)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		s.logger.Error("get history failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": history})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, stats)
}
