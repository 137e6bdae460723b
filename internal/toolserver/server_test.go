package toolserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nordveg/voyage/internal/config"
	"github.com/nordveg/voyage/internal/travel"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	nominatim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Oslo" {
			w.Write([]byte(`[{"lat":"59.9133","lon":"10.7389","display_name":"Oslo, Norway"}]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(nominatim.Close)

	service := travel.NewService(config.TravelConfig{}, slog.Default(),
		travel.WithBaseURLs("", nominatim.URL, "", ""))
	return New(service, slog.Default(), nil)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected status %q", body["status"])
	}
}

func TestToolsCatalogEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Tools []toolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(body.Tools))
	}
	for _, tool := range body.Tools {
		if tool.Endpoint == "" || tool.Method == "" {
			t.Errorf("tool %s missing endpoint or method", tool.Name)
		}
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			t.Errorf("tool %s schema invalid: %v", tool.Name, err)
		}
	}
}

func TestWeatherEndpointValidation(t *testing.T) {
	server := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var envelope Response
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Success {
		t.Errorf("failure must set success=false")
	}
	if envelope.Error == "" || envelope.Timestamp == "" {
		t.Errorf("failure envelope incomplete: %+v", envelope)
	}
}

func TestRoutesEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/routes", strings.NewReader(`{"origin":"Oslo","destination":"Oslo"}`))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope Response
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Success {
		t.Errorf("expected success envelope: %+v", envelope)
	}
}

func TestFlightsEndpointRequiresParams(t *testing.T) {
	server := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/flights?origin=OSL", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
