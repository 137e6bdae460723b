package mcp

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func TestProcessLineRoutesResponse(t *testing.T) {
	tr := newStdioTransport(ServerConfig{Command: "true"}, slog.Default())

	respChan := make(chan *jsonRPCResponse, 1)
	tr.pendingMu.Lock()
	tr.pending[7] = respChan
	tr.pendingMu.Unlock()

	tr.processLine(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`)

	select {
	case resp := <-respChan:
		var result map[string]bool
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		if !result["ok"] {
			t.Errorf("unexpected result: %+v", result)
		}
	default:
		t.Fatalf("response was not routed to the pending call")
	}

	tr.pendingMu.Lock()
	_, stillPending := tr.pending[7]
	tr.pendingMu.Unlock()
	if stillPending {
		t.Errorf("pending entry should be cleared after routing")
	}
}

func TestProcessLineIgnoresUnknownID(t *testing.T) {
	tr := newStdioTransport(ServerConfig{Command: "true"}, slog.Default())
	// Must not panic or block.
	tr.processLine(`{"jsonrpc":"2.0","id":99,"result":{}}`)
	tr.processLine(`{"jsonrpc":"2.0","method":"notifications/progress"}`)
	tr.processLine(`not json at all`)
}

func TestBridgedToolSchemaFallback(t *testing.T) {
	tool := &bridgedTool{info: ToolInfo{Name: "get_weather_forecast"}}
	var schema map[string]any
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("fallback schema invalid: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("fallback schema should be an object schema, got %+v", schema)
	}
}
