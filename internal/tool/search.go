package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"
)

const searchDescription = `Searches the sandboxed workspace by filename glob and/or file content regex.

Usage:
- glob filters which files are considered (doublestar syntax, e.g. "**/*.go");
  defaults to "**/*" (every file)
- pattern, if given, is a regex matched against each candidate file's content;
  matching lines are returned with file path and line number
- When pattern is omitted, search behaves as a file-listing tool and just
  returns the paths matching glob, most recently modified first`

// SearchTool implements combined filename/content search within a sandboxed root.
type SearchTool struct {
	allowedRoot string
}

// SearchInput is the search tool's parameter shape.
type SearchInput struct {
	Glob    string `json:"glob,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Path    string `json:"path,omitempty"`
}

// SearchMatch is one content match.
type SearchMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

const maxSearchResults = 200

// NewSearchTool builds a search tool rooted at allowedRoot.
func NewSearchTool(allowedRoot string) *SearchTool {
	return &SearchTool{allowedRoot: allowedRoot}
}

func (t *SearchTool) ID() string          { return "search" }
func (t *SearchTool) Description() string { return searchDescription }

func (t *SearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"glob": {"type": "string", "description": "Doublestar glob to filter candidate files, e.g. \"**/*.go\""},
			"pattern": {"type": "string", "description": "Regex to match against file contents"},
			"path": {"type": "string", "description": "Subdirectory to search within, relative to the workspace root"}
		}
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params SearchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Glob == "" {
		params.Glob = "**/*"
	}

	searchRoot, err := resolveSandboxed(t.allowedRoot, params.Path)
	if err != nil {
		return &Result{Output: "Error: " + err.Error()}, nil
	}

	var re *regexp.Regexp
	if params.Pattern != "" {
		re, err = regexp.Compile(params.Pattern)
		if err != nil {
			return &Result{Output: fmt.Sprintf("Error: invalid pattern: %v", err)}, nil
		}
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate

	_ = filepath.WalkDir(searchRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(searchRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		matched, matchErr := doublestar.Match(params.Glob, rel)
		if matchErr != nil || !matched {
			return nil
		}
		info, statErr := d.Info()
		var modTime int64
		if statErr == nil {
			modTime = info.ModTime().UnixNano()
		}
		candidates = append(candidates, candidate{path: rel, modTime: modTime})
		return nil
	})

	if re == nil {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
		truncated := false
		if len(candidates) > maxSearchResults {
			candidates = candidates[:maxSearchResults]
			truncated = true
		}
		lines := make([]string, len(candidates))
		for i, c := range candidates {
			lines[i] = c.path
		}
		output := strings.Join(lines, "\n")
		if truncated {
			output += fmt.Sprintf("\n\n(Showing %d of more files)", maxSearchResults)
		}
		if output == "" {
			output = "No files matched the pattern"
		}
		return &Result{
			Title:    fmt.Sprintf("Found %d files", len(candidates)),
			Output:   output,
			Metadata: map[string]any{"glob": params.Glob, "count": len(candidates)},
		}, nil
	}

	var matches []SearchMatch
	for _, c := range candidates {
		if len(matches) >= maxSearchResults {
			break
		}
		data, readErr := os.ReadFile(filepath.Join(searchRoot, c.path))
		if readErr != nil {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, SearchMatch{Path: c.path, Line: i + 1, Content: line})
				if len(matches) >= maxSearchResults {
					break
				}
			}
		}
	}

	if len(matches) == 0 {
		return &Result{
			Title:    "Search results",
			Output:   "No matches found",
			Metadata: map[string]any{"pattern": params.Pattern, "count": 0},
		}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(fmt.Sprintf("%s:%d: %s\n", m.Path, m.Line, m.Content))
	}

	return &Result{
		Title:  fmt.Sprintf("Found %d matches", len(matches)),
		Output: sb.String(),
		Metadata: map[string]any{
			"pattern": params.Pattern,
			"count":   len(matches),
		},
	}, nil
}

func (t *SearchTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
