// Package models defines the shared data types for sessions, messages,
// and tool invocations.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the four known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// ToolCall represents a chat model's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
// Errors are carried as content with IsError set so the model can
// recover conversationally instead of the turn aborting.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one entry in a session's append-only conversation log.
// Content may be empty for assistant messages that only carry tool calls.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	OwnerID   string         `json:"owner_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Seq       int64          `json:"seq"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToolCallID returns the id of the tool-call request this tool-role
// message answers, read from metadata.
func (m *Message) ToolCallID() string {
	return m.metaString("tool_call_id")
}

// ToolName returns the tool name recorded on a tool-role message.
func (m *Message) ToolName() string {
	return m.metaString("tool_name")
}

func (m *Message) metaString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// Session is one logical conversation with persisted history.
type Session struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int64     `json:"message_count"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int64     `json:"message_count"`
}

// StoreStats describes the contents of a session store.
type StoreStats struct {
	TotalMessages  int64  `json:"total_messages"`
	TotalSessions  int64  `json:"total_sessions"`
	DistinctOwners int64  `json:"distinct_owners"`
	StorageBytes   int64  `json:"storage_bytes"`
	StoragePath    string `json:"storage_path,omitempty"`
}
