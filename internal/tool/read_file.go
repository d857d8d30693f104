package tool

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
)

const readFileDescription = `Reads a file from the sandboxed workspace.

Usage:
- path is resolved relative to the session's allowed root; absolute paths
  outside the root are rejected
- By default, reads up to 2000 lines from the beginning
- offset/limit page through long files
- Returns file contents with line numbers
- Can read image files and return them as a base64 attachment`

// ReadFileTool reads a file within a sandboxed root.
type ReadFileTool struct {
	allowedRoot string
}

// ReadFileInput is the read_file tool's parameter shape.
type ReadFileInput struct {
	Path   string `json:"path"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// NewReadFileTool builds a read_file tool rooted at allowedRoot.
func NewReadFileTool(allowedRoot string) *ReadFileTool {
	return &ReadFileTool{allowedRoot: allowedRoot}
}

func (t *ReadFileTool) ID() string          { return "read_file" }
func (t *ReadFileTool) Description() string { return readFileDescription }

func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file, relative to the workspace root"},
			"offset": {"type": "integer", "description": "Line number to start reading from"},
			"limit": {"type": "integer", "description": "Number of lines to read (default: 2000)"}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ReadFileInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Limit <= 0 {
		params.Limit = 2000
	}

	resolved, err := resolveSandboxed(t.allowedRoot, params.Path)
	if err != nil {
		return &Result{Output: "Error: " + err.Error()}, nil
	}

	if shouldBlockEnvFile(resolved) {
		return &Result{Output: fmt.Sprintf("Error: reading %s is blocked", params.Path)}, nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return &Result{Output: fmt.Sprintf("Error: file not found: %s", params.Path)}, nil
	}
	if info.IsDir() {
		return &Result{Output: fmt.Sprintf("Error: path is a directory: %s", params.Path)}, nil
	}

	if isImageFile(resolved) {
		return t.readImage(resolved, params.Path)
	}
	if isBinaryFile(resolved) {
		return &Result{Output: "Error: file appears to be binary"}, nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if params.Offset > 0 && lineNum < params.Offset {
			continue
		}
		if len(lines) >= params.Limit {
			break
		}
		line := scanner.Text()
		if len(line) > 2000 {
			line = line[:2000] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
	}

	var sb strings.Builder
	sb.WriteString("<file>\n")
	sb.WriteString(strings.Join(lines, "\n"))

	lastReadLine := params.Offset + len(lines)
	if lineNum > lastReadLine {
		sb.WriteString(fmt.Sprintf("\n\n(File has more lines. Use 'offset' to read beyond line %d)", lastReadLine))
	} else {
		sb.WriteString(fmt.Sprintf("\n\n(End of file - total %d lines)", lineNum))
	}
	sb.WriteString("\n</file>")

	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(params.Path)),
		Output: sb.String(),
		Metadata: map[string]any{
			"path":       params.Path,
			"lines":      len(lines),
			"totalLines": lineNum,
		},
	}, nil
}

func (t *ReadFileTool) readImage(resolved, displayPath string) (*Result, error) {
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	mediaType := detectMediaType(resolved)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
	return &Result{
		Title:  fmt.Sprintf("Read %s", filepath.Base(displayPath)),
		Output: "(Image file)",
		Attachments: []Attachment{
			{Filename: filepath.Base(displayPath), MediaType: mediaType, URL: dataURL},
		},
	}, nil
}

func (t *ReadFileTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	if n == 0 {
		return false
	}
	nonPrintable := 0
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
		if buf[i] < 32 && buf[i] != '\n' && buf[i] != '\r' && buf[i] != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

func detectMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// shouldBlockEnvFile blocks .env-like files, except documented sample/example suffixes.
func shouldBlockEnvFile(path string) bool {
	for _, w := range []string{".env.sample", ".example"} {
		if strings.HasSuffix(path, w) {
			return false
		}
	}
	return strings.Contains(path, ".env")
}
