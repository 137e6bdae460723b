package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nordveg/voyage/internal/observability"
	"github.com/nordveg/voyage/internal/sessions"
	"github.com/nordveg/voyage/pkg/models"
)

const defaultSystemPrompt = `You are a helpful travel assistant. You can check weather forecasts, plan routes between locations, search for flights, and recommend trips. Use the available tools to answer questions with real data. Be concise and practical.`

const apologyMessage = "I apologize, but I ran into a problem while processing your request. Please try again."

// RuntimeOptions configures the orchestration runtime.
type RuntimeOptions struct {
	Model         string
	SystemPrompt  string
	MaxRounds     int
	MaxTokens     int
	ContextWindow int
	DefaultOwner  string
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// Runtime drives the tool-calling conversation loop: it persists the
// user's message, calls the chat model, executes any requested tools,
// and repeats until the model answers in plain text or the round cap is
// hit. Every role transition is persisted before the next model call.
type Runtime struct {
	store    sessions.Store
	provider ChatProvider
	tools    *ToolRegistry
	opts     RuntimeOptions

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Rounds    int    `json:"rounds"`
	ToolCalls int    `json:"tool_calls"`
}

func NewRuntime(store sessions.Store, provider ChatProvider, tools *ToolRegistry, opts RuntimeOptions) *Runtime {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 8
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 10
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.DefaultOwner == "" {
		opts.DefaultOwner = "default"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runtime{
		store:        store,
		provider:     provider,
		tools:        tools,
		opts:         opts,
		sessionLocks: make(map[string]*sessionLock),
	}
}

// StartSession creates a fresh session for the owner.
func (r *Runtime) StartSession(ctx context.Context, ownerID, title string) (*models.Session, error) {
	if ownerID == "" {
		ownerID = r.opts.DefaultOwner
	}
	if title == "" {
		title = "Conversation " + time.Now().Format("2006-01-02 15:04")
	}
	return r.store.CreateSession(ctx, ownerID, title)
}

// ProcessQuery runs one full user turn. An empty sessionID starts a new
// session. Turns on the same session are serialized.
func (r *Runtime) ProcessQuery(ctx context.Context, sessionID, ownerID, query string) (*TurnResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if ownerID == "" {
		ownerID = r.opts.DefaultOwner
	}

	if sessionID == "" {
		session, err := r.StartSession(ctx, ownerID, "")
		if err != nil {
			return nil, err
		}
		sessionID = session.ID
	}

	unlock := r.lockSession(sessionID)
	defer unlock()

	if err := r.store.AppendMessage(ctx, sessionID, ownerID, &models.Message{
		Role:    models.RoleUser,
		Content: query,
	}); err != nil {
		return nil, err
	}

	result, err := r.runLoop(ctx, sessionID, ownerID)
	if err != nil {
		return result, err
	}
	result.SessionID = sessionID
	return result, nil
}

func (r *Runtime) runLoop(ctx context.Context, sessionID, ownerID string) (*TurnResult, error) {
	result := &TurnResult{SessionID: sessionID}
	decls := r.tools.Declarations()

	for round := 1; round <= r.opts.MaxRounds; round++ {
		result.Rounds = round

		window, err := r.store.RecentContext(ctx, sessionID, ownerID, r.opts.ContextWindow)
		if err != nil {
			return result, err
		}

		completion, err := r.provider.Complete(ctx, &CompletionRequest{
			Model:     r.opts.Model,
			System:    r.opts.SystemPrompt,
			Messages:  toCompletionMessages(window),
			Tools:     decls,
			MaxTokens: r.opts.MaxTokens,
		})
		if err != nil {
			r.opts.Logger.Error("model request failed",
				"session_id", sessionID,
				"round", round,
				"error", err)
			r.countModelCall("error")
			r.finishTurn(result, "model_error")

			// Persist the apology so the transcript stays coherent, then
			// hand the failure to the caller.
			apology := &models.Message{Role: models.RoleAssistant, Content: apologyMessage}
			if perr := r.store.AppendMessage(ctx, sessionID, ownerID, apology); perr != nil {
				r.opts.Logger.Error("failed to persist apology", "session_id", sessionID, "error", perr)
			}
			result.Reply = apologyMessage
			return result, fmt.Errorf("%w: %v", ErrModelRequest, err)
		}
		r.countModelCall("ok")

		if len(completion.ToolCalls) == 0 {
			if err := r.store.AppendMessage(ctx, sessionID, ownerID, &models.Message{
				Role:    models.RoleAssistant,
				Content: completion.Text,
			}); err != nil {
				return result, err
			}
			result.Reply = completion.Text
			r.finishTurn(result, "ok")
			return result, nil
		}

		// Persist the assistant's tool requests before executing them so a
		// crash mid-turn leaves an explainable transcript.
		if err := r.store.AppendMessage(ctx, sessionID, ownerID, &models.Message{
			Role:      models.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		}); err != nil {
			return result, err
		}

		for _, call := range completion.ToolCalls {
			toolResult := r.executeTool(ctx, call)
			result.ToolCalls++
			if err := r.store.AppendMessage(ctx, sessionID, ownerID, &models.Message{
				Role:    models.RoleTool,
				Content: toolResult.Content,
				Metadata: map[string]any{
					sessions.MetaToolCallID: toolResult.ToolCallID,
					sessions.MetaToolName:   call.Name,
				},
			}); err != nil {
				return result, err
			}
		}
	}

	r.opts.Logger.Warn("tool loop exceeded round cap",
		"session_id", sessionID,
		"max_rounds", r.opts.MaxRounds)
	r.finishTurn(result, "loop_exceeded")
	return result, fmt.Errorf("%w after %d rounds", ErrToolLoopExceeded, r.opts.MaxRounds)
}

// executeTool runs a single tool call and always produces a result; tool
// failures are folded into error results so the model can recover.
func (r *Runtime) executeTool(ctx context.Context, call models.ToolCall) *models.ToolResult {
	start := time.Now()
	result, err := r.tools.Execute(ctx, call)
	if err != nil {
		// Execute reserves errors for broken invocations; treat the same.
		result = errorResult(call.ID, &ToolError{Kind: FailureToolExecution, Tool: call.Name, Err: err})
	}

	outcome := "ok"
	if result.IsError {
		outcome = "error"
		r.opts.Logger.Warn("tool call failed",
			"tool", call.Name,
			"tool_call_id", call.ID,
			"result", result.Content)
	} else {
		r.opts.Logger.Debug("tool call completed",
			"tool", call.Name,
			"duration", time.Since(start).String())
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.ToolCallsTotal.WithLabelValues(call.Name, outcome).Inc()
		r.opts.Metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}
	return result
}

func (r *Runtime) countModelCall(outcome string) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.ModelCallsTotal.WithLabelValues(r.provider.Name(), outcome).Inc()
	}
}

func (r *Runtime) finishTurn(result *TurnResult, outcome string) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.TurnsTotal.WithLabelValues(outcome).Inc()
		r.opts.Metrics.TurnRounds.Observe(float64(result.Rounds))
	}
}

// toCompletionMessages converts stored messages into the provider-neutral
// shape. Tool-role messages become tool results attached to a message.
func toCompletionMessages(msgs []*models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == models.RoleTool {
			out = append(out, CompletionMessage{
				Role: models.RoleTool,
				ToolResults: []models.ToolResult{{
					ToolCallID: msg.ToolCallID(),
					Content:    msg.Content,
				}},
			})
			continue
		}
		out = append(out, CompletionMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
	}
	return out
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (r *Runtime) lockSession(sessionID string) func() {
	r.sessionLocksMu.Lock()
	lock := r.sessionLocks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		r.sessionLocks[sessionID] = lock
	}
	lock.refs++
	r.sessionLocksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.sessionLocksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(r.sessionLocks, sessionID)
		}
		r.sessionLocksMu.Unlock()
	}
}
