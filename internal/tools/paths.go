package tools

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolvePath resolves a tool-supplied path against workDir and rejects
// anything that escapes it. Relative paths are joined to workDir;
// absolute paths must already be inside it.
func resolvePath(workDir, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workDir, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(workDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the working directory", path)
	}
	return abs, nil
}
