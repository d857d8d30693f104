package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	einotool "github.com/cloudwego/eino/components/tool"
)

const writeFileDescription = `Writes content to a file in the sandboxed workspace.

Usage:
- path is resolved relative to the session's allowed root; absolute paths
  outside the root are rejected
- This tool overwrites existing files
- Parent directories are created if they don't exist
- Writing identical content to an existing file is a no-op with respect to
  file versioning (idempotent)`

// WriteFileTool writes a file within a sandboxed root. Versioning/diff
// capture is performed by the caller (internal/turnrunner) after a
// successful Execute, by reading the pre-write content via ReadBefore and
// comparing to the post-write content — the tool itself stays
// filesystem-only and side-effect-free beyond the write.
type WriteFileTool struct {
	allowedRoot string
}

// WriteFileInput is the write_file tool's parameter shape.
type WriteFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// NewWriteFileTool builds a write_file tool rooted at allowedRoot.
func NewWriteFileTool(allowedRoot string) *WriteFileTool {
	return &WriteFileTool{allowedRoot: allowedRoot}
}

func (t *WriteFileTool) ID() string          { return "write_file" }
func (t *WriteFileTool) Description() string { return writeFileDescription }

func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file, relative to the workspace root"},
			"content": {"type": "string", "description": "The content to write"}
		},
		"required": ["path", "content"]
	}`)
}

// ReadBefore returns the resolved path's current content, or "" if it
// doesn't exist yet. Used by TurnRunner to snapshot the pre-write state
// before calling Execute, so the diff event can show what changed.
func (t *WriteFileTool) ReadBefore(path string) (resolved, before string, err error) {
	resolved, err = resolveSandboxed(t.allowedRoot, path)
	if err != nil {
		return "", "", err
	}
	data, readErr := os.ReadFile(resolved)
	if readErr != nil {
		return resolved, "", nil
	}
	return resolved, string(data), nil
}

func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WriteFileInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	resolved, err := resolveSandboxed(t.allowedRoot, params.Path)
	if err != nil {
		return &Result{Output: "Error: " + err.Error()}, nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return &Result{Output: fmt.Sprintf("Error: failed to create directory: %v", err)}, nil
	}
	if err := os.WriteFile(resolved, []byte(params.Content), 0o644); err != nil {
		return &Result{Output: fmt.Sprintf("Error: failed to write file: %v", err)}, nil
	}

	return &Result{
		Title:  fmt.Sprintf("Wrote %s", filepath.Base(params.Path)),
		Output: fmt.Sprintf("Successfully wrote %d bytes to %s", len(params.Content), params.Path),
		Metadata: map[string]any{
			"path":  params.Path,
			"bytes": len(params.Content),
		},
	}, nil
}

func (t *WriteFileTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
