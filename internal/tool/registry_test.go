package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLauncher struct{}

func (stubLauncher) RunSubagent(ctx context.Context, parentCallID, task, label string) (string, error) {
	return "", nil
}

func TestRegistry_RegisterGetList(t *testing.T) {
	r := NewRegistry()
	root := t.TempDir()
	r.Register(NewReadFileTool(root))
	r.Register(NewWriteFileTool(root))

	got, ok := r.Get("read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", got.ID())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"read_file", "write_file"}, r.IDs())
	assert.Len(t, r.List(), 2)
}

func TestRegistry_RegisterOverwriteKeepsOrder(t *testing.T) {
	r := NewRegistry()
	root := t.TempDir()
	r.Register(NewReadFileTool(root))
	r.Register(NewReadFileTool(root))
	assert.Equal(t, []string{"read_file"}, r.IDs())
}

func TestRegistry_EinoToolsAndToolInfos(t *testing.T) {
	r := NewRegistry()
	r.Register(NewReadFileTool(t.TempDir()))
	assert.Len(t, r.EinoTools(), 1)
	assert.Len(t, r.ToolInfos(), 1)
}

func TestRegistry_SubsetPreservesOrder(t *testing.T) {
	r := NewDefaultRegistry(t.TempDir(), stubLauncher{})
	sub := r.Subset(SubagentToolIDs...)
	assert.Equal(t, SubagentToolIDs, sub.IDs())
	_, ok := sub.Get("spawn_subagent")
	assert.False(t, ok)
}

func TestNewDefaultRegistry_HasFullToolSet(t *testing.T) {
	r := NewDefaultRegistry(t.TempDir(), stubLauncher{})
	assert.Equal(t, FullToolIDs, r.IDs())
}

func TestNewSubagentRegistry_HasReducedToolSet(t *testing.T) {
	r := NewSubagentRegistry(t.TempDir())
	assert.Equal(t, SubagentToolIDs, r.IDs())
}
