package tool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/opencode/internal/apperror"
)

func TestResolveSandboxed_RelativePathStaysInRoot(t *testing.T) {
	root := t.TempDir()
	resolved, err := resolveSandboxed(root, "sub/file.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.go"), resolved)
}

func TestResolveSandboxed_AbsolutePathInsideRootAllowed(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "file.go")
	resolved, err := resolveSandboxed(root, abs)
	require.NoError(t, err)
	assert.Equal(t, abs, resolved)
}

func TestResolveSandboxed_DotDotEscapeRejected(t *testing.T) {
	root := t.TempDir()
	_, err := resolveSandboxed(root, "../outside.go")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidRequest, apperror.CodeOf(err))
}

func TestResolveSandboxed_AbsolutePathOutsideRootRejected(t *testing.T) {
	root := t.TempDir()
	_, err := resolveSandboxed(root, "/etc/passwd")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidRequest, apperror.CodeOf(err))
}

func TestResolveSandboxed_DrivePrefixRejected(t *testing.T) {
	root := t.TempDir()
	_, err := resolveSandboxed(root, "C:\\Windows\\System32")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInvalidRequest, apperror.CodeOf(err))
}

func TestResolveSandboxed_NoRootConfiguredIsInternalError(t *testing.T) {
	_, err := resolveSandboxed("", "x.go")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))
}

func TestResolvePath_IsResolveSandboxed(t *testing.T) {
	root := t.TempDir()
	resolved, err := ResolvePath(root, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.txt"), resolved)
}
