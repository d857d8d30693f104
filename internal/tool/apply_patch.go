package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	einotool "github.com/cloudwego/eino/components/tool"
)

const applyPatchDescription = `Applies a unified diff across one or more files in the sandboxed workspace, atomically.

Usage:
- patch is one or more standard unified-diff file sections
  ("--- a/path", "+++ b/path", "@@ ... @@" hunks)
- Every path named by the patch is validated against the workspace root
  before any file is touched
- If any hunk cannot be located (even after fuzzy context matching), no
  file is modified and the result reports applied:false
- Returns JSON: {"applied": bool, "files": [{"path","diff"}], "error"?: string}`

// ApplyPatchTool applies multi-file unified diffs within a sandboxed root.
type ApplyPatchTool struct {
	allowedRoot string
}

// ApplyPatchInput is the apply_patch tool's parameter shape.
type ApplyPatchInput struct {
	Patch string `json:"patch"`
}

type appliedFile struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

type applyPatchOutput struct {
	Applied bool          `json:"applied"`
	Files   []appliedFile `json:"files,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// NewApplyPatchTool builds an apply_patch tool rooted at allowedRoot.
func NewApplyPatchTool(allowedRoot string) *ApplyPatchTool {
	return &ApplyPatchTool{allowedRoot: allowedRoot}
}

func (t *ApplyPatchTool) ID() string          { return "apply_patch" }
func (t *ApplyPatchTool) Description() string { return applyPatchDescription }

func (t *ApplyPatchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"patch": {"type": "string", "description": "One or more unified-diff file sections"}
		},
		"required": ["patch"]
	}`)
}

// fileHunk is one parsed "@@" block targeting a single file.
type fileHunk struct {
	path    string
	context []string // lines to locate in the target, including leading " " markers stripped
	removed []string // subset of context lines that must be deleted
	added   []string // lines to insert in their place
}

func (t *ApplyPatchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ApplyPatchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	hunks, parseErr := parseUnifiedDiff(params.Patch)
	if parseErr != nil {
		out := applyPatchOutput{Applied: false, Error: parseErr.Error()}
		return jsonResult(out), nil
	}

	// Validate and resolve every path up front; touch nothing until all
	// hunks for all files are known to apply.
	byPath := map[string][]*fileHunk{}
	var order []string
	for _, h := range hunks {
		if _, ok := byPath[h.path]; !ok {
			order = append(order, h.path)
		}
		byPath[h.path] = append(byPath[h.path], h)
	}

	type plannedFile struct {
		resolved string
		before   string
		after    string
	}
	planned := make(map[string]*plannedFile)

	for _, path := range order {
		resolved, err := resolveSandboxed(t.allowedRoot, path)
		if err != nil {
			return jsonResult(applyPatchOutput{Applied: false, Error: err.Error()}), nil
		}
		data, readErr := os.ReadFile(resolved)
		before := ""
		if readErr == nil {
			before = string(data)
		}
		after, applyErr := applyHunksToContent(before, byPath[path])
		if applyErr != nil {
			return jsonResult(applyPatchOutput{Applied: false, Error: fmt.Sprintf("%s: %v", path, applyErr)}), nil
		}
		planned[path] = &plannedFile{resolved: resolved, before: before, after: after}
	}

	// All hunks located successfully; commit every file.
	var files []appliedFile
	for _, path := range order {
		pf := planned[path]
		if err := os.MkdirAll(filepath.Dir(pf.resolved), 0o755); err != nil {
			return jsonResult(applyPatchOutput{Applied: false, Error: err.Error()}), nil
		}
		if err := os.WriteFile(pf.resolved, []byte(pf.after), 0o644); err != nil {
			return jsonResult(applyPatchOutput{Applied: false, Error: err.Error()}), nil
		}
		diffText, _, _ := buildDiffMetadata(pf.resolved, pf.before, pf.after, t.allowedRoot)
		files = append(files, appliedFile{Path: path, Diff: diffText})
	}

	return jsonResult(applyPatchOutput{Applied: true, Files: files}), nil
}

func jsonResult(out applyPatchOutput) *Result {
	body, _ := json.Marshal(out)
	return &Result{
		Title:    "apply_patch",
		Output:   string(body),
		Metadata: map[string]any{"applied": out.Applied},
	}
}

// parseUnifiedDiff splits patch text into per-file hunks. Only "---"/"+++"
// file headers and "@@" hunk bodies are recognized; index/mode lines are
// skipped.
func parseUnifiedDiff(patch string) ([]*fileHunk, error) {
	lines := strings.Split(patch, "\n")
	var hunks []*fileHunk
	var currentPath string

	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- "):
			i++
			continue
		case strings.HasPrefix(line, "+++ "):
			currentPath = normalizeDiffPath(strings.TrimPrefix(line, "+++ "))
			i++
			continue
		case strings.HasPrefix(line, "@@"):
			if currentPath == "" {
				return nil, fmt.Errorf("hunk with no preceding file header")
			}
			h := &fileHunk{path: currentPath}
			i++
			for i < len(lines) {
				l := lines[i]
				if strings.HasPrefix(l, "@@") || strings.HasPrefix(l, "--- ") {
					break
				}
				switch {
				case strings.HasPrefix(l, "+"):
					h.added = append(h.added, strings.TrimPrefix(l, "+"))
				case strings.HasPrefix(l, "-"):
					text := strings.TrimPrefix(l, "-")
					h.removed = append(h.removed, text)
					h.context = append(h.context, text)
				case strings.HasPrefix(l, " "):
					text := strings.TrimPrefix(l, " ")
					h.context = append(h.context, text)
				case l == "":
					// trailing blank line, ignore
				default:
					h.context = append(h.context, l)
				}
				i++
			}
			hunks = append(hunks, h)
			continue
		default:
			i++
		}
	}
	if len(hunks) == 0 {
		return nil, fmt.Errorf("no hunks found in patch")
	}
	return hunks, nil
}

func normalizeDiffPath(p string) string {
	p = strings.TrimSpace(p)
	if idx := strings.Index(p, "\t"); idx >= 0 {
		p = p[:idx]
	}
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	return p
}

// applyHunksToContent applies every hunk for one file in order. Each hunk's
// removed+context block is located in content by exact match first, falling
// back to a Levenshtein-tolerant search over sliding windows of the same
// line count when no exact match exists.
func applyHunksToContent(content string, hunks []*fileHunk) (string, error) {
	lines := strings.Split(content, "\n")
	for _, h := range hunks {
		if len(h.removed) == 0 && len(h.context) == 0 {
			// Pure insertion with no anchor: append at end of file.
			lines = append(lines, h.added...)
			continue
		}
		start, found := locateContext(lines, h.removed)
		if !found {
			return "", fmt.Errorf("could not locate hunk context (even fuzzy match failed)")
		}
		before := append([]string{}, lines[:start]...)
		after := append([]string{}, lines[start+len(h.removed):]...)
		merged := append(before, h.added...)
		merged = append(merged, after...)
		lines = merged
	}
	return strings.Join(lines, "\n"), nil
}

// locateContext finds the start index of block within lines, first by exact
// match, then by the lowest-edit-distance window if no exact match exists.
func locateContext(lines, block []string) (int, bool) {
	if len(block) == 0 {
		return 0, false
	}
	for i := 0; i+len(block) <= len(lines); i++ {
		if sliceEqual(lines[i:i+len(block)], block) {
			return i, true
		}
	}

	blockText := strings.Join(block, "\n")
	bestIdx, bestDist := -1, -1
	const maxAcceptableDistance = 2
	for i := 0; i+len(block) <= len(lines); i++ {
		windowText := strings.Join(lines[i:i+len(block)], "\n")
		dist := levenshtein.ComputeDistance(blockText, windowText)
		if bestDist == -1 || dist < bestDist {
			bestDist, bestIdx = dist, i
		}
	}
	if bestIdx >= 0 && bestDist <= maxAcceptableDistance {
		return bestIdx, true
	}
	return -1, false
}

func sliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *ApplyPatchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
