package turnrunner

import (
	"fmt"
	"os"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unifiedDiff renders a unified diff of before/after for a FileChange
// record. Grounded on internal/tool/diff.go's use of the same library.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	patches := dmp.PatchMake(before, diffs)
	body := dmp.PatchToText(patches)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("--- %s\n+++ %s\n%s", path, path, body)
}
