package mcp

import (
	"context"
	"encoding/json"

	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/pkg/models"
)

// bridgedTool adapts a server-advertised tool to the agent.Tool
// interface. Transport failures surface as error results so the model
// can recover conversationally.
type bridgedTool struct {
	client *Client
	info   ToolInfo
}

func (t *bridgedTool) Name() string        { return t.info.Name }
func (t *bridgedTool) Description() string { return t.info.Description }

func (t *bridgedTool) Schema() json.RawMessage {
	if len(t.info.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.info.InputSchema
}

func (t *bridgedTool) Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
	text, isError, err := t.client.CallTool(ctx, t.info.Name, input)
	if err != nil {
		terr := &agent.ToolError{Kind: agent.FailureTransport, Tool: t.info.Name, Err: err}
		return &models.ToolResult{Content: terr.ResultText(), IsError: true}, nil
	}
	return &models.ToolResult{Content: text, IsError: isError}, nil
}

// RegisterTools registers every tool the connected client advertises.
func RegisterTools(client *Client, registry *agent.ToolRegistry) {
	for _, info := range client.Tools() {
		registry.Register(&bridgedTool{client: client, info: info})
	}
}
