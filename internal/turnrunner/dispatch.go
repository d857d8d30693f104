package turnrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/opencode-ai/opencode/internal/tool"
	"github.com/opencode-ai/opencode/pkg/types"
)

// dispatchToolCall resolves permission, executes one tool call, emits its
// tool_call/tool_result/diff events, and returns the tool-result message to
// append to history. It never returns an error: every failure mode (denied,
// expired, tool error) is expressed as a tool-result message fed back to the
// model instead, so only tool errors are ever locally recovered.
func (r *Runner) dispatchToolCall(ctx context.Context, p loopParams, stepID string, tc schema.ToolCall) *schema.Message {
	input := parseToolArguments(tc.Function.Arguments)

	policy := r.permissions.EffectivePolicy(p.sessionID, tc.Function.Name)
	if policy == types.PolicyDeny {
		return r.syntheticDenial(p, stepID, tc, fmt.Sprintf("permission denied for tool %q", tc.Function.Name))
	}

	if policy == types.PolicyAsk {
		reqID, err := r.permissions.CreateRequest(p.sessionID, p.turnID, stepID, tc.Function.Name, input)
		if err != nil {
			return r.syntheticDenial(p, stepID, tc, fmt.Sprintf("permission request failed: %v", err))
		}
		r.emit(p.sessionID, p.turnID, stepID, "tool_call", map[string]any{
			"tool_call_id": tc.ID,
			"name":         tc.Function.Name,
			"status":       "permission_required",
			"input":        input,
			"request_id":   reqID,
		})
		result := r.permissions.Wait(ctx, reqID, r.cfg.PermissionTimeout)
		if !result.Approved {
			return r.syntheticDenial(p, stepID, tc, fmt.Sprintf("permission denied for tool %q", tc.Function.Name))
		}
	}

	r.emit(p.sessionID, p.turnID, stepID, "tool_call", map[string]any{
		"tool_call_id": tc.ID,
		"name":         tc.Function.Name,
		"status":       "running",
		"input":        input,
	})

	t, ok := p.registry.Get(tc.Function.Name)
	if !ok {
		return r.syntheticDenial(p, stepID, tc, fmt.Sprintf("unknown tool %q", tc.Function.Name))
	}

	var before *snapshot
	if mutating, path := mutatingToolPath(t, input); mutating {
		before = r.snapshotBefore(t, path)
	}

	start := time.Now()
	toolCtx := &tool.Context{
		SessionID: p.sessionID,
		CallID:    tc.ID,
		Extra:     map[string]any{"turn_id": p.turnID, "step_id": stepID},
	}
	argsJSON, _ := json.Marshal(input)
	result, execErr := t.Execute(ctx, argsJSON, toolCtx)
	duration := time.Since(start)

	ok2, output, errText := classifyResult(tc.Function.Name, result, execErr)

	r.emit(p.sessionID, p.turnID, stepID, "tool_result", map[string]any{
		"tool_call_id": tc.ID,
		"ok":           ok2,
		"output":       truncateForEvent(output),
		"error":        errText,
		"duration_ms":  duration.Milliseconds(),
	})

	if ok2 {
		if before != nil {
			r.recordMutation(p, stepID, before, output)
		}
		r.captureContextItem(p, tc.Function.Name, input, result)
	}

	feedback := output
	if !ok2 {
		feedback = errText
	}
	return &schema.Message{
		Role:       schema.Tool,
		Content:    feedback,
		ToolCallID: tc.ID,
	}
}

func (r *Runner) syntheticDenial(p loopParams, stepID string, tc schema.ToolCall, message string) *schema.Message {
	r.emit(p.sessionID, p.turnID, stepID, "tool_result", map[string]any{
		"tool_call_id": tc.ID,
		"ok":           false,
		"error":        message,
		"duration_ms":  0,
	})
	return &schema.Message{
		Role:       schema.Tool,
		Content:    "Error: " + message,
		ToolCallID: tc.ID,
	}
}

// classifyResult applies the JSON-vs-prefix tool error classification:
// apply_patch/http_fetch report success structurally via JSON, everything
// else signals failure via an "Error:" prefixed Output.
func classifyResult(toolName string, result *tool.Result, execErr error) (ok bool, output, errText string) {
	if execErr != nil {
		return false, "", execErr.Error()
	}
	if result == nil {
		return false, "", "tool returned no result"
	}

	switch toolName {
	case "apply_patch":
		var parsed struct {
			Applied bool   `json:"applied"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(result.Output), &parsed); err == nil {
			if !parsed.Applied {
				return false, result.Output, parsed.Error
			}
			return true, result.Output, ""
		}
		return false, result.Output, "malformed apply_patch result"
	case "http_fetch":
		var parsed struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(result.Output), &parsed); err == nil && parsed.Error != "" {
			return false, result.Output, parsed.Error
		}
		return true, result.Output, ""
	default:
		if hasErrorPrefix(result.Output) {
			return false, result.Output, result.Output
		}
		return true, result.Output, ""
	}
}

func hasErrorPrefix(s string) bool {
	const prefix = "Error:"
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// mutatingToolPath reports whether a tool call mutates the filesystem and,
// if so, the path argument it mutates (write_file only; apply_patch may
// touch several paths and snapshots each internally via its own before/after
// diff, so it is excluded here).
func mutatingToolPath(t tool.Tool, input map[string]any) (bool, string) {
	if t.ID() != "write_file" {
		return false, ""
	}
	path, _ := input["path"].(string)
	if path == "" {
		return false, ""
	}
	return true, path
}

type snapshot struct {
	path     string
	resolved string
	before   string
}

func (r *Runner) snapshotBefore(t tool.Tool, path string) *snapshot {
	wf, ok := t.(*tool.WriteFileTool)
	if !ok {
		return nil
	}
	resolved, before, err := wf.ReadBefore(path)
	if err != nil {
		return nil
	}
	return &snapshot{path: path, resolved: resolved, before: before}
}

// recordMutation snapshots the base version (if this is the first time this
// path is touched), records the new version and diff, and emits a diff
// event. output is write_file's plain success string; the post-write
// content itself is re-read from disk since write_file doesn't return it.
func (r *Runner) recordMutation(p loopParams, stepID string, before *snapshot, _ string) {
	after, readErr := readFile(before.resolved)
	if readErr != nil {
		return
	}
	if err := r.store.EnsureBaseVersion(p.sessionID, before.path, before.before); err != nil {
		return
	}
	version, err := r.store.AddVersion(p.sessionID, before.path, after, "tool write", p.turnID, stepID)
	if err != nil || version == nil {
		return
	}
	diffText := unifiedDiff(before.path, before.before, after)
	fc, err := r.store.AddFileChange(p.sessionID, p.turnID, stepID, before.path, diffText)
	if err != nil {
		return
	}
	r.emit(p.sessionID, p.turnID, stepID, "diff", map[string]any{
		"path":            before.path,
		"unified_diff":    diffText,
		"file_change_id":  fc.ID,
		"file_version_id": version.ID,
	})
}

// captureContextItem opportunistically pins a read_file/http_fetch result as
// a ContextItem so future turns can reference it without re-fetching; a
// failure here is best-effort and never fails the tool call itself.
func (r *Runner) captureContextItem(p loopParams, toolName string, input map[string]any, result *tool.Result) {
	if result == nil {
		return
	}
	switch toolName {
	case "read_file":
		path, _ := input["path"].(string)
		if path == "" {
			return
		}
		_, _ = r.store.UpsertContextItem(p.sessionID, types.ContextFile, path, path, false)
	case "http_fetch":
		url, _ := input["url"].(string)
		if url == "" {
			return
		}
		_, _ = r.store.UpsertContextItem(p.sessionID, types.ContextWeb, url, url, false)
	}
}
