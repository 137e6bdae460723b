package agent

import (
	"context"
	"encoding/json"

	"github.com/nordveg/voyage/pkg/models"
)

// ToolDeclaration describes a callable tool to a chat provider.
type ToolDeclaration struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// CompletionMessage is one prior turn submitted to a chat provider.
type CompletionMessage struct {
	Role        models.Role
	Content     string
	ToolCalls   []models.ToolCall
	ToolResults []models.ToolResult
}

// CompletionRequest asks a provider for one chat completion.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []CompletionMessage
	Tools     []ToolDeclaration
	MaxTokens int
}

// Completion is a provider's reply: text, tool-call requests, or both.
type Completion struct {
	Text      string
	ToolCalls []models.ToolCall
}

// ChatProvider is the interface to a chat model API. Complete blocks
// until the model responds or ctx is done.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}
