package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/genai"
)

// maxGlobMatches caps the number of paths returned per call.
const maxGlobMatches = 200

// GlobTool finds files matching a glob pattern.
type GlobTool struct {
	workDir string
}

// NewGlobTool creates a glob tool rooted at workDir.
func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) Name() string {
	return "glob"
}

func (t *GlobTool) Description() string {
	return `Finds files matching a glob pattern, newest first.

PARAMETERS:
- pattern (required): Glob pattern relative to the working directory,
  supports ** (e.g. "**/*.go", "cmd/**/main.go")

Returns at most 200 matches.`
}

func (t *GlobTool) Classification() Classification {
	return ClassReadOnly
}

func (t *GlobTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"pattern": {
					Type:        genai.TypeString,
					Description: "The glob pattern to match files against",
				},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *GlobTool) Validate(args map[string]any) error {
	pattern, ok := GetString(args, "pattern")
	if !ok || pattern == "" {
		return NewValidationError("pattern", "is required")
	}
	if !doublestar.ValidatePattern(pattern) {
		return NewValidationError("pattern", "is not a valid glob pattern")
	}
	return nil
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	pattern, _ := GetString(args, "pattern")

	type match struct {
		path    string
		modTime time.Time
	}
	var matches []match

	fsys := os.DirFS(t.workDir)
	err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		matches = append(matches, match{path: path, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return NewErrorResult(fmt.Sprintf("glob failed: %s", err)), nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].modTime.After(matches[j].modTime)
	})

	truncated := false
	if len(matches) > maxGlobMatches {
		matches = matches[:maxGlobMatches]
		truncated = true
	}

	if len(matches) == 0 {
		return NewSuccessResult(fmt.Sprintf("no files match pattern %q", pattern)), nil
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}

	result := NewSuccessResultWithData(strings.Join(paths, "\n"), map[string]any{
		"count": len(paths),
	})
	if truncated {
		result = result.WithWarning(fmt.Sprintf("match list truncated at %d entries", maxGlobMatches))
	}
	return result, nil
}
