package tools

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// ListDirTool lists the entries of a directory.
type ListDirTool struct {
	workDir string
}

// NewListDirTool creates a list_dir tool rooted at workDir.
func NewListDirTool(workDir string) *ListDirTool {
	return &ListDirTool{workDir: workDir}
}

func (t *ListDirTool) Name() string {
	return "list_dir"
}

func (t *ListDirTool) Description() string {
	return `Lists the entries of a directory. Directories are suffixed with a slash.

PARAMETERS:
- path (optional): Directory to list, defaults to the working directory`
}

func (t *ListDirTool) Classification() Classification {
	return ClassReadOnly
}

func (t *ListDirTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {
					Type:        genai.TypeString,
					Description: "The directory to list. Optional, defaults to the working directory.",
				},
			},
		},
	}
}

func (t *ListDirTool) Validate(args map[string]any) error {
	return nil
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	rawPath := GetStringDefault(args, "path", ".")
	path, err := resolvePath(t.workDir, rawPath)
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewErrorResult(fmt.Sprintf("directory not found: %s", rawPath)), nil
		}
		return NewErrorResult(fmt.Sprintf("error listing directory: %s", err)), nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return NewSuccessResult("(empty directory)"), nil
	}
	return NewSuccessResultWithData(strings.Join(names, "\n"), map[string]any{
		"count": len(names),
		"path":  rawPath,
	}), nil
}
