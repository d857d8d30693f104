package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatchTool_AppliesSimpleHunk(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0o644))

	patch := "--- a/a.go\n+++ b/a.go\n@@ -1,3 +1,3 @@\n line1\n-line2\n+line2-modified\n line3\n"

	pt := NewApplyPatchTool(root)
	input, _ := json.Marshal(ApplyPatchInput{Patch: patch})
	res, err := pt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)

	var out applyPatchOutput
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	assert.True(t, out.Applied)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "a.go", out.Files[0].Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2-modified\nline3\n", string(data))
}

func TestApplyPatchTool_UnlocatableHunkAppliesNothing(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("totally different content\n"), 0o644))

	patch := "--- a/a.go\n+++ b/a.go\n@@ -1,3 +1,3 @@\n alpha bravo charlie delta echo foxtrot golf hotel\n-this line does not exist anywhere near\n+replacement\n zulu yankee xray whiskey victor uniform tango sierra\n"

	pt := NewApplyPatchTool(root)
	input, _ := json.Marshal(ApplyPatchInput{Patch: patch})
	res, err := pt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)

	var out applyPatchOutput
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	assert.False(t, out.Applied)
	assert.NotEmpty(t, out.Error)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "totally different content\n", string(data), "a failed patch must not modify the file")
}

func TestApplyPatchTool_NoHunksIsAnError(t *testing.T) {
	root := t.TempDir()
	pt := NewApplyPatchTool(root)
	input, _ := json.Marshal(ApplyPatchInput{Patch: "not a diff at all"})
	res, err := pt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)

	var out applyPatchOutput
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	assert.False(t, out.Applied)
}

func TestLocateContext_ExactMatch(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}
	idx, found := locateContext(lines, []string{"b", "c"})
	assert.True(t, found)
	assert.Equal(t, 1, idx)
}

func TestLocateContext_FuzzyMatchWithinTolerance(t *testing.T) {
	lines := []string{"foo bar", "hello wrld", "baz qux"}
	idx, found := locateContext(lines, []string{"hello world"})
	assert.True(t, found)
	assert.Equal(t, 1, idx)
}

func TestLocateContext_NoMatch(t *testing.T) {
	lines := []string{"completely", "unrelated", "content"}
	_, found := locateContext(lines, []string{"something entirely different and long enough to exceed tolerance"})
	assert.False(t, found)
}
