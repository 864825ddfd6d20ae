package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/genai"
)

const (
	// maxGrepMatches caps the number of matching lines per call.
	maxGrepMatches = 100
	// maxGrepFileSize skips files too large to scan line by line.
	maxGrepFileSize = 10 * 1024 * 1024
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	workDir string
}

// NewGrepTool creates a grep tool rooted at workDir.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) Name() string {
	return "grep"
}

func (t *GrepTool) Description() string {
	return `Searches file contents with a Go regular expression.

PARAMETERS:
- pattern (required): Regular expression to search for
- include (optional): Glob pattern to restrict which files are searched
  (e.g. "**/*.go")
- path (optional): Directory to search in, defaults to the working directory

Returns matching lines as path:line:text, at most 100 matches. Binary
files and files over 10MB are skipped.`
}

func (t *GrepTool) Classification() Classification {
	return ClassReadOnly
}

func (t *GrepTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"pattern": {
					Type:        genai.TypeString,
					Description: "The regular expression to search for",
				},
				"include": {
					Type:        genai.TypeString,
					Description: "Glob pattern restricting which files are searched. Optional.",
				},
				"path": {
					Type:        genai.TypeString,
					Description: "The directory to search in. Optional.",
				},
			},
			Required: []string{"pattern"},
		},
	}
}

func (t *GrepTool) Validate(args map[string]any) error {
	pattern, ok := GetString(args, "pattern")
	if !ok || pattern == "" {
		return NewValidationError("pattern", "is required")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return NewValidationError("pattern", fmt.Sprintf("invalid regular expression: %s", err))
	}
	if include, ok := GetString(args, "include"); ok && include != "" {
		if !doublestar.ValidatePattern(include) {
			return NewValidationError("include", "is not a valid glob pattern")
		}
	}
	return nil
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	pattern, _ := GetString(args, "pattern")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return NewErrorResult(fmt.Sprintf("invalid regular expression: %s", err)), nil
	}

	include := GetStringDefault(args, "include", "")
	rawRoot := GetStringDefault(args, "path", ".")
	root, err := resolvePath(t.workDir, rawRoot)
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}

	var lines []string
	truncated := false

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(t.workDir, path)
		if err != nil {
			return nil
		}
		if include != "" {
			ok, merr := doublestar.Match(include, filepath.ToSlash(rel))
			if merr != nil || !ok {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxGrepFileSize {
			return nil
		}

		matched, err := grepFile(path, rel, re, maxGrepMatches-len(lines))
		if err != nil {
			return nil
		}
		lines = append(lines, matched...)
		if len(lines) >= maxGrepMatches {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr == ctx.Err() {
		return Result{}, walkErr
	}

	if len(lines) == 0 {
		return NewSuccessResult(fmt.Sprintf("no matches for pattern %q", pattern)), nil
	}

	result := NewSuccessResultWithData(strings.Join(lines, "\n"), map[string]any{
		"count": len(lines),
	})
	if truncated {
		result = result.WithWarning(fmt.Sprintf("match list truncated at %d lines", maxGrepMatches))
	}
	return result, nil
}

// grepFile scans one file and returns up to limit matching lines.
func grepFile(path, rel string, re *regexp.Regexp, limit int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matches []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.ContainsRune(line, '\x00') {
			// binary file
			return matches, nil
		}
		if re.MatchString(line) {
			if len(line) > maxLineLen {
				line = line[:maxLineLen] + "..."
			}
			matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNum, line))
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, scanner.Err()
}
