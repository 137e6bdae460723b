package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nordveg/voyage/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a callable capability exposed to the chat model.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema describing the tool's input object.
	Schema() json.RawMessage

	// Execute runs the tool. Domain failures should be returned as an
	// error ToolResult; a Go error means the invocation itself broke.
	Execute(ctx context.Context, input json.RawMessage) (*models.ToolResult, error)
}

// Tool input limits.
const (
	MaxToolNameLength = 256
	MaxToolInputSize  = 1 << 20
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Input is validated against each tool's schema before dispatch.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas sync.Map // tool name -> *jsonschema.Schema
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool by name, replacing any existing registration.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas.Delete(tool.Name())
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in no particular order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Declarations returns the registered tools as provider declarations.
func (r *ToolRegistry) Declarations() []ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]ToolDeclaration, 0, len(r.tools))
	for _, tool := range r.tools {
		decls = append(decls, ToolDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Schema(),
		})
	}
	return decls
}

// Execute runs a tool by name with the given JSON input. Lookup misses,
// validation failures, and execution failures all come back as error
// ToolResults so the model can recover conversationally; the returned
// error is reserved for broken invocations (nil input contract etc.).
func (r *ToolRegistry) Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	if len(call.Name) > MaxToolNameLength {
		return errorResult(call.ID, &ToolError{
			Kind: FailureUnknownTool,
			Tool: call.Name[:MaxToolNameLength],
			Err:  fmt.Errorf("name exceeds %d characters", MaxToolNameLength),
		}), nil
	}
	if len(call.Input) > MaxToolInputSize {
		return errorResult(call.ID, &ToolError{
			Kind: FailureInvalidArgs,
			Tool: call.Name,
			Err:  fmt.Errorf("input exceeds %d bytes", MaxToolInputSize),
		}), nil
	}

	tool, ok := r.Get(call.Name)
	if !ok {
		return errorResult(call.ID, &ToolError{
			Kind: FailureUnknownTool,
			Tool: call.Name,
			Err:  fmt.Errorf("not registered"),
		}), nil
	}

	if err := r.validateInput(tool, call.Input); err != nil {
		return errorResult(call.ID, &ToolError{
			Kind: FailureInvalidArgs,
			Tool: call.Name,
			Err:  err,
		}), nil
	}

	result, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return errorResult(call.ID, &ToolError{
			Kind: FailureToolExecution,
			Tool: call.Name,
			Err:  err,
		}), nil
	}
	if result.ToolCallID == "" {
		result.ToolCallID = call.ID
	}
	return result, nil
}

func (r *ToolRegistry) validateInput(tool Tool, input json.RawMessage) error {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}

	schema, err := r.compiledSchema(tool.Name(), raw)
	if err != nil {
		// A malformed schema is the tool author's bug; do not block calls.
		return nil
	}

	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	var value any
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}
	return schema.Validate(value)
}

func (r *ToolRegistry) compiledSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := r.schemas.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("tool.json")
	if err != nil {
		return nil, err
	}
	r.schemas.Store(name, schema)
	return schema, nil
}

func errorResult(callID string, terr *ToolError) *models.ToolResult {
	return &models.ToolResult{
		ToolCallID: callID,
		Content:    terr.ResultText(),
		IsError:    true,
	}
}
