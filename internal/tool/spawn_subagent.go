package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
)

const spawnSubagentDescription = `Delegates a task to a bounded, non-streaming nested agent loop.

Usage:
- task is the instruction handed to the subagent
- label optionally names the subagent for event/UI purposes
- Returns the subagent's final text response
- The subagent has its own small tool set (read_file/write_file/apply_patch/
  search/http_fetch) and cannot itself spawn further subagents`

// SubagentLauncher is satisfied by the turn runner and held here only as an
// interface reference, breaking the cyclic ownership between TurnRunner (owns
// the tool registry) and this tool (needs to start a nested TurnRunner loop).
type SubagentLauncher interface {
	RunSubagent(ctx context.Context, parentCallID, task, label string) (string, error)
}

// SpawnSubagentTool implements spawn_subagent.
type SpawnSubagentTool struct {
	launcher SubagentLauncher
}

// SpawnSubagentInput is the spawn_subagent tool's parameter shape.
type SpawnSubagentInput struct {
	Task  string `json:"task"`
	Label string `json:"label,omitempty"`
}

// NewSpawnSubagentTool builds a spawn_subagent tool over launcher.
func NewSpawnSubagentTool(launcher SubagentLauncher) *SpawnSubagentTool {
	return &SpawnSubagentTool{launcher: launcher}
}

func (t *SpawnSubagentTool) ID() string          { return "spawn_subagent" }
func (t *SpawnSubagentTool) Description() string { return spawnSubagentDescription }

func (t *SpawnSubagentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "description": "The instruction to hand to the subagent"},
			"label": {"type": "string", "description": "Optional label for the subagent, surfaced in events"}
		},
		"required": ["task"]
	}`)
}

func (t *SpawnSubagentTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params SpawnSubagentInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if t.launcher == nil {
		return &Result{Output: "Error: no subagent launcher configured"}, nil
	}

	callID := ""
	if toolCtx != nil {
		callID = toolCtx.CallID
	}

	text, err := t.launcher.RunSubagent(ctx, callID, params.Task, params.Label)
	if err != nil {
		return &Result{Output: fmt.Sprintf("Error: subagent failed: %v", err)}, nil
	}

	return &Result{
		Title:  "spawn_subagent",
		Output: text,
		Metadata: map[string]any{
			"label": params.Label,
		},
	}, nil
}

func (t *SpawnSubagentTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
