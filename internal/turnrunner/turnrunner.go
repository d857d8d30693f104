// Package turnrunner implements the central agent loop: one TurnRunner runs
// one turn (or one bounded subagent task) to completion, streaming LLM
// output, dispatching tool calls through the permission gate, and
// persisting every observable step as a durable event.
//
// Streaming chunk accumulation (Index-keyed tool-call tracking, Content
// prefix-vs-delta detection, ReasoningContent handling) follows
// internal/session/stream.go's approach; the permission-gated tool dispatch
// loop and truncate-for-event-but-not-for-model behavior follow
// original_source/nanobot/web/runner.py.
package turnrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/opencode/internal/apperror"
	"github.com/opencode-ai/opencode/internal/logging"
	"github.com/opencode-ai/opencode/internal/permission"
	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/types"
)

// eventResultTruncateLimit is the length persisted/streamed tool output is
// cut to; the full text still goes back to the model's message history.
// Grounded on original_source/nanobot/web/runner.py's _emit_tool_result.
const eventResultTruncateLimit = 2000

// Store is the subset of *store.Store TurnRunner depends on.
type Store interface {
	CreateStep(turnID string, idx int) (*types.Step, error)
	FinishStep(id string, status types.StepStatus) error
	EnsureBaseVersion(sessionID, path, beforeContent string) error
	AddVersion(sessionID, path, content, note, turnID, stepID string) (*types.FileVersion, error)
	AddFileChange(sessionID, turnID, stepID, path, unifiedDiff string) (*types.FileChange, error)
	UpsertContextItem(sessionID string, kind types.ContextItemKind, title, contentRef string, pinned bool) (*types.ContextItem, error)
	ListPinnedContextItems(sessionID string) ([]*types.ContextItem, error)
}

// EventBus is the subset of *eventbus.Bus TurnRunner depends on.
type EventBus interface {
	Publish(sessionID, turnID, stepID, typ string, payload map[string]any) (*types.Event, error)
}

// Permissions is the subset of *permission.Gate TurnRunner depends on.
type Permissions interface {
	EffectivePolicy(sessionID, toolName string) types.Policy
	CreateRequest(sessionID, turnID, stepID, toolName string, input map[string]any) (string, error)
	Wait(ctx context.Context, requestID string, timeout time.Duration) permission.Result
}

// Model is the streaming chat model TurnRunner drives. Bound separately per
// call via WithTools so the same underlying provider model can serve both
// full turns and reduced-tool-set subagent tasks.
type Model interface {
	WithTools(tools []*schema.ToolInfo) (Model, error)
	Stream(ctx context.Context, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error)
	Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

// Config bounds TurnRunner's loop.
type Config struct {
	MaxIterations         int
	SubagentMaxIterations int
	SubagentMaxDepth      int
	PermissionTimeout     time.Duration
	AllowedRoot           string
	SystemPrompt          string
}

// Runner drives one turn (or, recursively, one bounded subagent task) to
// completion. It implements tool.SubagentLauncher so the spawn_subagent tool
// can call back into it without an import cycle.
type Runner struct {
	store       Store
	bus         EventBus
	permissions Permissions
	model       Model
	cfg         Config
}

// New builds a Runner.
func New(store Store, bus EventBus, permissions Permissions, model Model, cfg Config) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	if cfg.SubagentMaxIterations <= 0 {
		cfg.SubagentMaxIterations = 10
	}
	if cfg.SubagentMaxDepth <= 0 {
		cfg.SubagentMaxDepth = 2
	}
	if cfg.PermissionTimeout <= 0 {
		cfg.PermissionTimeout = 2 * time.Minute
	}
	return &Runner{store: store, bus: bus, permissions: permissions, model: model, cfg: cfg}
}

type subagentDepthKey struct{}

// Run executes one top-level turn to completion, using the full tool set.
func (r *Runner) Run(ctx context.Context, session *types.ChatSession, turn *types.Turn, registry *tool.Registry, history []*schema.Message) (string, error) {
	ctx = context.WithValue(ctx, subagentDepthKey{}, 0)
	return r.runLoop(ctx, loopParams{
		sessionID:     session.ID,
		turnID:        turn.ID,
		userText:      turn.UserText,
		registry:      registry,
		history:       history,
		maxIterations: r.cfg.MaxIterations,
		streaming:     true,
	})
}

// RunSubagent implements tool.SubagentLauncher. It runs a reduced,
// non-streaming variant of the same loop, bounded by SubagentMaxDepth, and
// returns the subagent's final text.
func (r *Runner) RunSubagent(ctx context.Context, parentCallID, task, label string) (string, error) {
	depth, _ := ctx.Value(subagentDepthKey{}).(int)
	if depth >= r.cfg.SubagentMaxDepth {
		return "", apperror.New(apperror.CodeInvalidRequest, "maximum subagent recursion depth reached")
	}

	subagentID := ulid.Make().String()
	sessionID, turnID, stepID := subagentEnvelope(ctx)

	r.emit(sessionID, turnID, stepID, "subagent", map[string]any{
		"parent_tool_call_id": parentCallID,
		"subagent_id":         subagentID,
		"status":              "start",
		"label":               label,
		"task":                task,
	})

	registry := tool.NewSubagentRegistry(r.cfg.AllowedRoot)
	history := []*schema.Message{
		{Role: schema.System, Content: r.cfg.SystemPrompt},
		{Role: schema.User, Content: task},
	}

	childCtx := context.WithValue(ctx, subagentDepthKey{}, depth+1)
	text, err := r.runLoop(childCtx, loopParams{
		sessionID:     sessionID,
		turnID:        turnID,
		userText:      task,
		registry:      registry,
		history:       history,
		maxIterations: r.cfg.SubagentMaxIterations,
		streaming:     false,
		subagentID:    subagentID,
		parentCallID:  parentCallID,
	})
	if err != nil {
		r.emit(sessionID, turnID, stepID, "subagent", map[string]any{
			"parent_tool_call_id": parentCallID,
			"subagent_id":         subagentID,
			"status":              "error",
			"error":               err.Error(),
		})
		return "", err
	}

	r.emit(sessionID, turnID, stepID, "subagent", map[string]any{
		"parent_tool_call_id": parentCallID,
		"subagent_id":         subagentID,
		"status":              "end",
		"result":              text,
	})
	return text, nil
}

// subagentEnvelope is a placeholder extraction point: in the full wiring
// SessionScheduler stashes the active (session,turn,step) ids on ctx before
// invoking tool execution so nested subagent events correlate correctly.
func subagentEnvelope(ctx context.Context) (sessionID, turnID, stepID string) {
	if v, ok := ctx.Value(envelopeKey{}).(envelope); ok {
		return v.sessionID, v.turnID, v.stepID
	}
	return "", "", ""
}

type envelopeKey struct{}
type envelope struct{ sessionID, turnID, stepID string }

// WithEnvelope attaches the active session/turn/step ids to ctx so nested
// tool executions (subagent, permission requests) can correlate events.
func WithEnvelope(ctx context.Context, sessionID, turnID, stepID string) context.Context {
	return context.WithValue(ctx, envelopeKey{}, envelope{sessionID, turnID, stepID})
}

type loopParams struct {
	sessionID     string
	turnID        string
	userText      string
	registry      *tool.Registry
	history       []*schema.Message
	maxIterations int
	streaming     bool
	subagentID    string
	parentCallID  string
}

// runLoop is the iteration engine shared by top-level turns and subagent
// tasks. It returns the final assistant text.
func (r *Runner) runLoop(ctx context.Context, p loopParams) (string, error) {
	model, err := r.model.WithTools(p.registry.ToolInfos())
	if err != nil {
		return "", apperror.Wrap(apperror.CodeInternal, "bind tools", err)
	}

	messages := append([]*schema.Message{}, p.history...)

	step0, err := r.store.CreateStep(p.turnID, 0)
	if err != nil {
		return "", apperror.Wrap(apperror.CodeInternal, "create step 0", err)
	}
	r.emit(p.sessionID, p.turnID, step0.ID, "message_delta", map[string]any{
		"role":  "user",
		"delta": p.userText,
	})
	_ = r.store.FinishStep(step0.ID, types.StepCompleted)

	for idx := 1; idx <= p.maxIterations; idx++ {
		select {
		case <-ctx.Done():
			return "", apperror.New(apperror.CodeCancelled, "turn cancelled")
		default:
		}

		step, err := r.store.CreateStep(p.turnID, idx)
		if err != nil {
			return "", apperror.Wrap(apperror.CodeInternal, "create step", err)
		}
		ctx := WithEnvelope(ctx, p.sessionID, p.turnID, step.ID)

		assistantMsg, usage, finishReason, err := r.completeOneIteration(ctx, model, messages, p.sessionID, p.turnID, step.ID, p.streaming)
		if err != nil {
			_ = r.store.FinishStep(step.ID, types.StepError)
			r.emit(p.sessionID, p.turnID, step.ID, "error", map[string]any{
				"code":    string(apperror.CodeOf(err)),
				"message": err.Error(),
			})
			return "", err
		}

		if len(assistantMsg.ToolCalls) == 0 {
			r.emit(p.sessionID, p.turnID, step.ID, "final", map[string]any{
				"role":          "assistant",
				"text":          assistantMsg.Content,
				"finish_reason": finishReason,
				"usage":         usage,
			})
			_ = r.store.FinishStep(step.ID, types.StepCompleted)
			return assistantMsg.Content, nil
		}

		messages = append(messages, assistantMsg)

		for _, tc := range assistantMsg.ToolCalls {
			resultMsg := r.dispatchToolCall(ctx, p, step.ID, tc)
			messages = append(messages, resultMsg)
		}

		_ = r.store.FinishStep(step.ID, types.StepCompleted)
	}

	return "", apperror.New(apperror.CodeTurnError, "maximum iterations reached without a final response")
}

// completeOneIteration streams (or, for subagents, generates) one LLM
// completion and accumulates it into a single schema.Message, emitting
// message_delta/thinking events as chunks arrive. On a stream error it
// retries once via a non-streaming Generate call through cenkalti/backoff.
func (r *Runner) completeOneIteration(ctx context.Context, model Model, messages []*schema.Message, sessionID, turnID, stepID string, streaming bool) (*schema.Message, map[string]any, string, error) {
	if !streaming {
		msg, err := model.Generate(ctx, messages)
		if err != nil {
			return nil, nil, "", apperror.Wrap(apperror.CodeLLMStreamError, "subagent generate failed", err)
		}
		return msg, map[string]any{}, "stop", nil
	}

	msg, usage, finishReason, err := r.streamCompletion(ctx, model, messages, sessionID, turnID, stepID)
	if err == nil {
		return msg, usage, finishReason, nil
	}

	logging.Warn().Err(err).Msg("turnrunner: stream failed, retrying once via non-streaming fallback")
	var fallback *schema.Message
	retryErr := backoff.Retry(func() error {
		var genErr error
		fallback, genErr = model.Generate(ctx, messages)
		return genErr
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2))
	if retryErr != nil {
		return nil, nil, "", apperror.Wrap(apperror.CodeLLMStreamError, "llm stream failed and fallback generate failed", retryErr)
	}
	return fallback, map[string]any{}, "stop", nil
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func (r *Runner) streamCompletion(ctx context.Context, model Model, messages []*schema.Message, sessionID, turnID, stepID string) (*schema.Message, map[string]any, string, error) {
	stream, err := model.Stream(ctx, messages)
	if err != nil {
		return nil, nil, "", apperror.Wrap(apperror.CodeLLMStreamError, "start stream", err)
	}
	defer stream.Close()

	var accumulatedContent string
	var thinkingStarted bool
	var thinkingStart time.Time
	toolCalls := map[int]*toolCallAccumulator{}
	var toolOrder []int
	usage := map[string]any{}
	finishReason := "stop"

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, "", apperror.Wrap(apperror.CodeLLMStreamError, "receive chunk", err)
		}

		if chunk.Content != "" {
			var delta string
			if strings.HasPrefix(chunk.Content, accumulatedContent) {
				delta = chunk.Content[len(accumulatedContent):]
				accumulatedContent = chunk.Content
			} else {
				delta = chunk.Content
				accumulatedContent += chunk.Content
			}
			if delta != "" {
				r.emit(sessionID, turnID, stepID, "message_delta", map[string]any{
					"role":  "assistant",
					"delta": delta,
				})
			}
		}

		if chunk.ReasoningContent != "" {
			if !thinkingStarted {
				thinkingStarted = true
				thinkingStart = time.Now()
				r.emit(sessionID, turnID, stepID, "thinking", map[string]any{"status": "start"})
			}
			r.emit(sessionID, turnID, stepID, "thinking", map[string]any{
				"status": "delta",
				"text":   chunk.ReasoningContent,
			})
		}

		for _, tc := range chunk.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := toolCalls[idx]
			if !ok {
				acc = &toolCallAccumulator{}
				toolCalls[idx] = acc
				toolOrder = append(toolOrder, idx)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
			}
		}

		if chunk.ResponseMeta != nil {
			if chunk.ResponseMeta.Usage != nil {
				usage["prompt_tokens"] = chunk.ResponseMeta.Usage.PromptTokens
				usage["completion_tokens"] = chunk.ResponseMeta.Usage.CompletionTokens
			}
			if chunk.ResponseMeta.FinishReason != "" {
				finishReason = chunk.ResponseMeta.FinishReason
			}
		}
	}

	if thinkingStarted {
		r.emit(sessionID, turnID, stepID, "thinking", map[string]any{
			"status":      "end",
			"duration_ms": time.Since(thinkingStart).Milliseconds(),
		})
	}

	msg := &schema.Message{Role: schema.Assistant, Content: accumulatedContent}
	for _, idx := range toolOrder {
		acc := toolCalls[idx]
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			ID: acc.id,
			Function: schema.FunctionCall{
				Name:      acc.name,
				Arguments: acc.args.String(),
			},
		})
	}

	if finishReason == "tool_use" {
		finishReason = "tool-calls"
	}
	if len(msg.ToolCalls) > 0 && finishReason == "stop" {
		finishReason = "tool-calls"
	}

	return msg, usage, finishReason, nil
}

func (r *Runner) emit(sessionID, turnID, stepID, typ string, payload map[string]any) {
	if _, err := r.bus.Publish(sessionID, turnID, stepID, typ, payload); err != nil {
		logging.Warn().Err(err).Str("type", typ).Msg("turnrunner: failed to publish event")
	}
}

// parseToolArguments JSON-decodes an accumulated tool-call argument string,
// falling back to {"raw": original} on malformed JSON.
func parseToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]any{"raw": raw}
	}
	return parsed
}

func truncateForEvent(s string) string {
	if len(s) <= eventResultTruncateLimit {
		return s
	}
	return s[:eventResultTruncateLimit] + fmt.Sprintf("... (%d more bytes)", len(s)-eventResultTruncateLimit)
}
