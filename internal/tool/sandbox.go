package tool

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/opencode/internal/apperror"
)

// resolveSandboxed validates that path, once cleaned and made absolute
// under allowedRoot, stays within allowedRoot. It rejects absolute paths
// outside the root, drive-letter prefixes (Windows-style paths are never
// expected here), and any ".." segment that escapes the root.
//
// ResolvePath exposes resolveSandboxed for callers outside the tool
// package (the server's filesystem-artifact endpoints reuse the same
// containment check tools use, rather than re-implementing it).
func ResolvePath(allowedRoot, path string) (string, error) {
	return resolveSandboxed(allowedRoot, path)
}

func resolveSandboxed(allowedRoot, path string) (string, error) {
	if allowedRoot == "" {
		return "", apperror.New(apperror.CodeInternal, "sandbox: no allowed root configured")
	}
	if strings.ContainsRune(path, ':') {
		return "", apperror.New(apperror.CodeInvalidRequest, "path must not contain a drive prefix")
	}

	root, err := filepath.Abs(allowedRoot)
	if err != nil {
		return "", apperror.Wrap(apperror.CodeInternal, "resolve allowed root", err)
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(root, path))
	}

	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return "", apperror.Wrap(apperror.CodeInvalidRequest, "resolve relative path", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperror.New(apperror.CodeInvalidRequest, fmt.Sprintf("path %q escapes the allowed root", path))
	}

	return candidate, nil
}
