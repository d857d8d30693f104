package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDiffMetadata_NoChangeReturnsEmpty(t *testing.T) {
	diff, add, del := buildDiffMetadata("/root/a.go", "same", "same", "/root")
	assert.Equal(t, "", diff)
	assert.Equal(t, 0, add)
	assert.Equal(t, 0, del)
}

func TestBuildDiffMetadata_CountsAddedAndDeletedLines(t *testing.T) {
	before := "line1\nline2\nline3\n"
	after := "line1\nline2-changed\nline3\nline4\n"
	diff, add, del := buildDiffMetadata("/root/a.go", before, after, "/root")
	assert.NotEmpty(t, diff)
	assert.Contains(t, diff, "--- a.go")
	assert.Contains(t, diff, "+++ a.go")
	assert.Equal(t, 2, add)
	assert.Equal(t, 1, del)
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "a.go", relativePath("/root/a.go", "/root"))
	assert.Equal(t, "", relativePath("", "/root"))
	assert.Equal(t, "/other/a.go", relativePath("/other/a.go", ""))
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("no newline"))
	assert.Equal(t, 2, countLines("a\nb\n"))
	assert.Equal(t, 2, countLines("a\nb"))
}
