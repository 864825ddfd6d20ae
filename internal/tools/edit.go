package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"krusty/internal/fileutil"
)

// EditFileTool replaces an exact string in a file.
type EditFileTool struct {
	workDir string
}

// NewEditFileTool creates an edit_file tool rooted at workDir.
func NewEditFileTool(workDir string) *EditFileTool {
	return &EditFileTool{workDir: workDir}
}

func (t *EditFileTool) Name() string {
	return "edit_file"
}

func (t *EditFileTool) Description() string {
	return `Replaces an exact string in a file.

PARAMETERS:
- path (required): Path to the file, absolute or relative to the working directory
- old_string (required): Exact text to replace, must appear exactly once
  unless replace_all is set
- new_string (required): Replacement text
- replace_all (optional): Replace every occurrence instead of requiring
  a unique match

The edit fails if old_string is not found, or is ambiguous without
replace_all.`
}

func (t *EditFileTool) Classification() Classification {
	return ClassMutating
}

func (t *EditFileTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"path": {
					Type:        genai.TypeString,
					Description: "The path to the file to edit",
				},
				"old_string": {
					Type:        genai.TypeString,
					Description: "The exact text to replace",
				},
				"new_string": {
					Type:        genai.TypeString,
					Description: "The replacement text",
				},
				"replace_all": {
					Type:        genai.TypeBoolean,
					Description: "Replace all occurrences. Optional, defaults to false.",
				},
			},
			Required: []string{"path", "old_string", "new_string"},
		},
	}
}

func (t *EditFileTool) Validate(args map[string]any) error {
	path, ok := GetString(args, "path")
	if !ok || path == "" {
		return NewValidationError("path", "is required")
	}
	oldStr, ok := GetString(args, "old_string")
	if !ok || oldStr == "" {
		return NewValidationError("old_string", "is required")
	}
	newStr, ok := GetString(args, "new_string")
	if !ok {
		return NewValidationError("new_string", "is required")
	}
	if oldStr == newStr {
		return NewValidationError("new_string", "must differ from old_string")
	}
	return nil
}

// apply computes the edited content without writing it.
func (t *EditFileTool) apply(args map[string]any) (path, rawPath, oldContent, newContent string, count int, err error) {
	rawPath, _ = GetString(args, "path")
	oldStr, _ := GetString(args, "old_string")
	newStr, _ := GetString(args, "new_string")
	replaceAll := GetBoolDefault(args, "replace_all", false)

	path, err = resolvePath(t.workDir, rawPath)
	if err != nil {
		return "", rawPath, "", "", 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", rawPath, "", "", 0, fmt.Errorf("file not found: %s", rawPath)
		}
		return "", rawPath, "", "", 0, fmt.Errorf("error reading file: %w", err)
	}
	oldContent = string(data)

	count = strings.Count(oldContent, oldStr)
	switch {
	case count == 0:
		return "", rawPath, "", "", 0, fmt.Errorf("old_string not found in %s", rawPath)
	case count > 1 && !replaceAll:
		return "", rawPath, "", "", 0, fmt.Errorf(
			"old_string appears %d times in %s, use replace_all or a more specific string", count, rawPath)
	}

	if replaceAll {
		newContent = strings.ReplaceAll(oldContent, oldStr, newStr)
	} else {
		newContent = strings.Replace(oldContent, oldStr, newStr, 1)
		count = 1
	}
	return path, rawPath, oldContent, newContent, count, nil
}

// Preview renders the diff this edit would produce.
func (t *EditFileTool) Preview(args map[string]any) (string, error) {
	_, rawPath, oldContent, newContent, _, err := t.apply(args)
	if err != nil {
		return "", err
	}
	return unifiedDiff(rawPath, oldContent, newContent), nil
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	path, rawPath, _, newContent, count, err := t.apply(args)
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}

	if err := fileutil.AtomicWriteString(path, newContent, mode); err != nil {
		return NewErrorResult(fmt.Sprintf("error writing file: %s", err)), nil
	}

	return NewSuccessResultWithData(
		fmt.Sprintf("edited %s (%d replacement(s))", rawPath, count),
		map[string]any{"path": rawPath, "replacements": count},
	), nil
}
