package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoadCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(toolListResponse{Tools: []Descriptor{
			{Name: "get_weather_forecast", Description: "Weather", Endpoint: "/weather", Method: "POST"},
			{Name: "search_flights", Description: "Flights", Endpoint: "/flights", Method: "GET"},
		}})
	}))
	defer server.Close()

	loader := NewLoader(server.URL, 0, slog.Default())
	descriptors, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Endpoint != "/weather" {
		t.Errorf("unexpected endpoint %q", descriptors[0].Endpoint)
	}
}

func TestLoadFallsBackToNamingConvention(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(toolListResponse{Tools: []Descriptor{
			{Name: "get_weather_forecast", Description: "Weather"},
		}})
	}))
	defer server.Close()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	loader := NewLoader(server.URL, 0, logger)
	descriptors, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if descriptors[0].Endpoint != "/weather_forecast" {
		t.Errorf("expected convention endpoint /weather_forecast, got %q", descriptors[0].Endpoint)
	}
	if descriptors[0].Method != http.MethodPost {
		t.Errorf("expected default POST method, got %q", descriptors[0].Method)
	}
	if !strings.Contains(logBuf.String(), "naming convention") {
		t.Errorf("fallback must log a warning, log was: %s", logBuf.String())
	}
}

func TestLoadRejectsUnconventionalName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(toolListResponse{Tools: []Descriptor{
			{Name: "weather", Description: "no prefix, no endpoint"},
		}})
	}))
	defer server.Close()

	loader := NewLoader(server.URL, 0, slog.Default())
	if _, err := loader.Load(context.Background()); err == nil {
		t.Fatalf("expected error for descriptor with no endpoint and no convention")
	}
}

func TestHTTPToolPostEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/weather" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["location"] != "Oslo" {
			t.Errorf("unexpected body: %+v", body)
		}
		json.NewEncoder(w).Encode(Envelope{
			Success:   true,
			Data:      json.RawMessage(`{"temp_c":12,"conditions":"light rain"}`),
			Timestamp: "2026-08-24T12:00:00Z",
		})
	}))
	defer server.Close()

	loader := NewLoader(server.URL, 0, slog.Default())
	tool := loader.Tool(Descriptor{Name: "get_weather_forecast", Endpoint: "/weather", Method: "POST"})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"location":"Oslo"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "light rain") {
		t.Errorf("unexpected result content: %q", result.Content)
	}
}

func TestHTTPToolGetQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("origin") != "OSL" {
			t.Errorf("missing query param, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(Envelope{Success: true, Data: json.RawMessage(`[]`)})
	}))
	defer server.Close()

	loader := NewLoader(server.URL, 0, slog.Default())
	tool := loader.Tool(Descriptor{Name: "search_flights", Endpoint: "/flights", Method: "GET"})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"origin":"OSL"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
}

func TestHTTPToolFailureBecomesErrorResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(Envelope{Success: false, Error: "location is required"})
	}))
	defer server.Close()

	loader := NewLoader(server.URL, 0, slog.Default())
	tool := loader.Tool(Descriptor{Name: "get_weather_forecast", Endpoint: "/weather", Method: "POST"})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute must not return a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if !strings.Contains(result.Content, "location is required") {
		t.Errorf("server error text lost: %q", result.Content)
	}
}

func TestLoaderTimeout(t *testing.T) {
	loader := NewLoader("http://example.invalid", 5*time.Second, slog.Default())
	if loader.client.Timeout != 5*time.Second {
		t.Errorf("configured timeout not applied, got %s", loader.client.Timeout)
	}
	loader = NewLoader("http://example.invalid", 0, slog.Default())
	if loader.client.Timeout != 30*time.Second {
		t.Errorf("expected 30s default timeout, got %s", loader.client.Timeout)
	}
}

func TestHTTPToolUnreachableServer(t *testing.T) {
	loader := NewLoader("http://127.0.0.1:1", 0, slog.Default())
	tool := loader.Tool(Descriptor{Name: "get_weather_forecast", Endpoint: "/weather", Method: "POST"})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute must not return a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("transport failure must become an error result")
	}
}
