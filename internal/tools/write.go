package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"

	"krusty/internal/fileutil"
)

// WriteFileTool creates or overwrites a file.
type WriteFileTool struct {
	workDir string
}

// NewWriteFileTool creates a write_file tool rooted at workDir.
func NewWriteFileTool(workDir string) *WriteFileTool {
	return &WriteFileTool{workDir: workDir}
}

func (t *WriteFileTool) Name() string {
	return "write_file"
}

func (t *WriteFileTool) Description() string {
	return `Creates or overwrites a file with the given content. Parent
directories are created as needed.

PARAMETERS:
- path (required): Path to the file, absolute or relative to the working directory
- content (required): Full content to write`
}

func (t *WriteFileTool) Classification() Classification {
	return ClassMutating
}

func (t *WriteFileTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {
					Type:        genai.TypeString,
					Description: "The path to the file to write",
				},
				"content": {
					Type:        genai.TypeString,
					Description: "The full content to write to the file",
				},
			},
			Required: []string{"path", "content"},
		},
	}
}

func (t *WriteFileTool) Validate(args map[string]any) error {
	path, ok := GetString(args, "path")
	if !ok || path == "" {
		return NewValidationError("path", "is required")
	}
	if _, ok := GetString(args, "content"); !ok {
		return NewValidationError("content", "is required")
	}
	return nil
}

// Preview renders the diff this write would produce.
func (t *WriteFileTool) Preview(args map[string]any) (string, error) {
	rawPath, _ := GetString(args, "path")
	content, _ := GetString(args, "content")

	path, err := resolvePath(t.workDir, rawPath)
	if err != nil {
		return "", err
	}

	old := ""
	if data, rerr := os.ReadFile(path); rerr == nil {
		old = string(data)
	}
	return unifiedDiff(rawPath, old, content), nil
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	rawPath, _ := GetString(args, "path")
	content, _ := GetString(args, "content")

	path, err := resolvePath(t.workDir, rawPath)
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}

	if info, serr := os.Stat(path); serr == nil && info.IsDir() {
		return NewErrorResult(fmt.Sprintf("%s is a directory", rawPath)), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewErrorResult(fmt.Sprintf("error creating directories: %s", err)), nil
	}

	existed := false
	if _, serr := os.Stat(path); serr == nil {
		existed = true
	}

	if err := fileutil.AtomicWriteString(path, content, 0o644); err != nil {
		return NewErrorResult(fmt.Sprintf("error writing file: %s", err)), nil
	}

	action := "created"
	if existed {
		action = "overwrote"
	}
	lineCount := strings.Count(content, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		lineCount++
	}
	return NewSuccessResultWithData(
		fmt.Sprintf("%s %s (%d lines)", action, rawPath, lineCount),
		map[string]any{"path": rawPath, "bytes": len(content)},
	), nil
}
