// Package catalog loads tool descriptors from a remote tool server and
// exposes them as agent tools over HTTP.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/pkg/models"
)

// Descriptor describes one remotely served tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
}

// Envelope is the tool server's uniform response shape.
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type toolListResponse struct {
	Tools []Descriptor `json:"tools"`
}

// Loader fetches tool catalogs and builds HTTP-backed tools.
type Loader struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewLoader builds a loader for the tool server at baseURL. A
// non-positive timeout falls back to 30 seconds; the timeout covers
// both the catalog fetch and every tool invocation.
func NewLoader(baseURL string, timeout time.Duration, logger *slog.Logger) *Loader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Load fetches GET /tools once and returns the advertised descriptors.
// Descriptors that omit their endpoint fall back to the naming
// convention: a "get_" prefix maps the remainder to a path.
func (l *Loader) Load(ctx context.Context) ([]Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/tools", nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tool catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tool catalog: status %d", resp.StatusCode)
	}

	var list toolListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}

	for i := range list.Tools {
		desc := &list.Tools[i]
		if desc.Endpoint == "" {
			endpoint, ok := conventionEndpoint(desc.Name)
			if !ok {
				return nil, fmt.Errorf("tool %q has no endpoint and no usable naming convention", desc.Name)
			}
			l.logger.Warn("tool descriptor missing endpoint, falling back to naming convention",
				"tool", desc.Name,
				"endpoint", endpoint)
			desc.Endpoint = endpoint
		}
		if desc.Method == "" {
			desc.Method = http.MethodPost
		}
	}

	l.logger.Info("loaded remote tool catalog", "url", l.baseURL, "count", len(list.Tools))
	return list.Tools, nil
}

// RegisterAll loads the catalog and registers every tool.
func (l *Loader) RegisterAll(ctx context.Context, registry *agent.ToolRegistry) error {
	descriptors, err := l.Load(ctx)
	if err != nil {
		return err
	}
	for _, desc := range descriptors {
		registry.Register(l.Tool(desc))
	}
	return nil
}

// Tool builds an HTTP-backed agent tool from a descriptor.
func (l *Loader) Tool(desc Descriptor) agent.Tool {
	return &httpTool{loader: l, desc: desc}
}

// conventionEndpoint derives an endpoint path from a "get_"-prefixed
// tool name, e.g. get_weather_forecast -> /weather_forecast.
func conventionEndpoint(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, "get_")
	if !ok || rest == "" {
		return "", false
	}
	return "/" + rest, true
}

type httpTool struct {
	loader *Loader
	desc   Descriptor
}

func (t *httpTool) Name() string        { return t.desc.Name }
func (t *httpTool) Description() string { return t.desc.Description }

func (t *httpTool) Schema() json.RawMessage {
	if len(t.desc.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.desc.InputSchema
}

func (t *httpTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
	req, err := t.buildRequest(ctx, input)
	if err != nil {
		return transportFailure(t.desc.Name, err), nil
	}

	resp, err := t.loader.client.Do(req)
	if err != nil {
		return transportFailure(t.desc.Name, err), nil
	}
	defer resp.Body.Close()

	var envelope Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return transportFailure(t.desc.Name, fmt.Errorf("decode response: %w", err)), nil
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = fmt.Sprintf("tool server returned status %d", resp.StatusCode)
		}
		return &models.ToolResult{Content: "Error: " + msg, IsError: true}, nil
	}
	return &models.ToolResult{Content: string(envelope.Data)}, nil
}

func (t *httpTool) buildRequest(ctx context.Context, input json.RawMessage) (*http.Request, error) {
	url := t.loader.baseURL + t.desc.Endpoint

	if t.desc.Method == http.MethodGet {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if len(input) > 0 {
			var args map[string]any
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			q := req.URL.Query()
			for k, v := range args {
				q.Set(k, fmt.Sprint(v))
			}
			req.URL.RawQuery = q.Encode()
		}
		return req, nil
	}

	body := input
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	req, err := http.NewRequestWithContext(ctx, t.desc.Method, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func transportFailure(tool string, err error) *models.ToolResult {
	terr := &agent.ToolError{Kind: agent.FailureTransport, Tool: tool, Err: err}
	return &models.ToolResult{Content: terr.ResultText(), IsError: true}
}
