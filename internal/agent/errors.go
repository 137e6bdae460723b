package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrToolLoopExceeded means the model kept requesting tools past the
	// round cap. The turn's partial transcript remains persisted.
	ErrToolLoopExceeded = errors.New("tool loop exceeded")

	// ErrModelRequest wraps chat provider failures.
	ErrModelRequest = errors.New("model request failed")
)

// ToolFailureKind classifies why a tool invocation produced an error
// result. Tool failures never abort a turn; they are reported back to
// the model as textual results.
type ToolFailureKind string

const (
	FailureUnknownTool   ToolFailureKind = "unknown_tool"
	FailureInvalidArgs   ToolFailureKind = "invalid_arguments"
	FailureTransport     ToolFailureKind = "transport"
	FailureToolExecution ToolFailureKind = "execution"
)

// ToolError carries the classification of a failed tool invocation. It
// is rendered into the result text handed back to the model.
type ToolError struct {
	Kind ToolFailureKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ResultText renders the failure as the content of an error ToolResult.
func (e *ToolError) ResultText() string {
	switch e.Kind {
	case FailureUnknownTool:
		return fmt.Sprintf("Error: Unknown tool %q.", e.Tool)
	case FailureInvalidArgs:
		return fmt.Sprintf("Error: invalid arguments for tool %q: %v", e.Tool, e.Err)
	case FailureTransport:
		return fmt.Sprintf("Error: tool %q could not be reached: %v", e.Tool, e.Err)
	default:
		return fmt.Sprintf("Error: tool %q failed: %v", e.Tool, e.Err)
	}
}
