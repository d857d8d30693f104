package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileTool_ReadsWithLineNumbers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("line1\nline2\nline3\n"), 0o644))

	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: "a.go"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "00001| line1")
	assert.Contains(t, res.Output, "00003| line3")
	assert.Equal(t, 3, res.Metadata["totalLines"])
}

func TestReadFileTool_OffsetAndLimit(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		sb.WriteString("line\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte(sb.String()), 0o644))

	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: "a.go", Offset: 5, Limit: 2})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metadata["lines"])
	assert.Contains(t, res.Output, "more lines")
}

func TestReadFileTool_MissingFile(t *testing.T) {
	root := t.TempDir()
	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: "missing.go"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Error: file not found")
}

func TestReadFileTool_DirectoryRejected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: "sub"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Error: path is a directory")
}

func TestReadFileTool_EscapeRejected(t *testing.T) {
	root := t.TempDir()
	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: "../outside.go"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Error:")
}

func TestReadFileTool_EnvFileBlocked(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("SECRET=1"), 0o644))
	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: ".env"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "is blocked")
}

func TestReadFileTool_EnvSampleAllowed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env.sample"), []byte("SECRET=\n"), 0o644))
	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: ".env.sample"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "SECRET")
}

func TestReadFileTool_BinaryFileRejected(t *testing.T) {
	root := t.TempDir()
	data := make([]byte, 100)
	for i := range data {
		data[i] = 0
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), data, 0o644))
	rt := NewReadFileTool(root)
	input, _ := json.Marshal(ReadFileInput{Path: "bin.dat"})
	res, err := rt.Execute(context.Background(), input, &Context{})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "binary")
}

func TestReadFileTool_ID(t *testing.T) {
	rt := NewReadFileTool(".")
	assert.Equal(t, "read_file", rt.ID())
	assert.NotEmpty(t, rt.Description())
	assert.NotEmpty(t, rt.Parameters())
}
