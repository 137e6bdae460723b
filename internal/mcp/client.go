package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Client connects to a tool server, negotiates the protocol, and exposes
// its tool catalog.
type Client struct {
	transport *stdioTransport
	logger    *slog.Logger
	tools     []ToolInfo
}

// NewClient builds an unconnected client.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	return &Client{
		transport: newStdioTransport(cfg, logger),
		logger:    logger,
	}
}

// Connect launches the subprocess and performs the initialize handshake,
// then fetches the tool catalog.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.connect(ctx); err != nil {
		return err
	}

	result, err := c.transport.call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    capabilities{Tools: map[string]any{}},
		ClientInfo:      clientInfo{Name: "voyage", Version: "1.0.0"},
	})
	if err != nil {
		c.transport.close()
		return fmt.Errorf("initialize: %w", err)
	}
	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		c.transport.close()
		return fmt.Errorf("decode initialize result: %w", err)
	}
	if err := c.transport.notify("notifications/initialized", nil); err != nil {
		c.transport.close()
		return fmt.Errorf("initialized notification: %w", err)
	}
	c.logger.Info("connected to tool server",
		"server", init.ServerInfo.Name,
		"version", init.ServerInfo.Version)

	if err := c.refreshTools(ctx); err != nil {
		c.transport.close()
		return err
	}
	return nil
}

// Close terminates the subprocess.
func (c *Client) Close() error {
	return c.transport.close()
}

// Tools returns the catalog fetched at connect time.
func (c *Client) Tools() []ToolInfo {
	return c.tools
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.transport.call(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	var list listToolsResult
	if err := json.Unmarshal(result, &list); err != nil {
		return fmt.Errorf("decode tool list: %w", err)
	}
	c.tools = list.Tools
	c.logger.Info("loaded tool catalog", "count", len(c.tools))
	return nil
}

// CallTool invokes a tool and flattens the result's text fragments.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, bool, error) {
	result, err := c.transport.call(ctx, "tools/call", callToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", false, err
	}

	var call CallToolResult
	if err := json.Unmarshal(result, &call); err != nil {
		return "", false, fmt.Errorf("decode tool result: %w", err)
	}

	var parts []string
	for _, fragment := range call.Content {
		if fragment.Type == "text" && fragment.Text != "" {
			parts = append(parts, fragment.Text)
		}
	}
	return strings.Join(parts, "\n"), call.IsError, nil
}
