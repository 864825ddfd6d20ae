package tools

import (
	"context"

	"google.golang.org/genai"
)

// Classification indicates whether a tool can change state outside the
// conversation.
type Classification int

const (
	// ClassReadOnly tools only observe; they never require approval.
	ClassReadOnly Classification = iota
	// ClassMutating tools change files, run processes, or spawn agents.
	ClassMutating
)

func (c Classification) String() string {
	if c == ClassMutating {
		return "mutating"
	}
	return "read-only"
}

// Tool defines the interface for all tools.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Classification reports whether the tool mutates external state.
	Classification() Classification

	// Declaration returns the function declaration for this tool.
	Declaration() *genai.FunctionDeclaration

	// Validate validates the arguments before execution.
	Validate(args map[string]any) error

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Previewer is an optional interface for tools that can render what
// they would do before approval. File-changing tools return a unified
// diff.
type Previewer interface {
	Preview(args map[string]any) (string, error)
}

// Result represents the outcome of a tool execution.
type Result struct {
	// Content is the main result content (usually text).
	Content string

	// Data contains structured data if applicable.
	Data any

	// Error contains an error message if the tool failed.
	Error string

	// OK indicates whether the tool executed successfully.
	OK bool

	// Warnings carry non-fatal notes, such as output truncation.
	Warnings []string

	// Metadata holds auxiliary details for the transcript.
	Metadata map[string]any
}

// NewSuccessResult creates a successful result.
func NewSuccessResult(content string) Result {
	return Result{Content: content, OK: true}
}

// NewSuccessResultWithData creates a successful result with structured data.
func NewSuccessResultWithData(content string, data any) Result {
	return Result{Content: content, Data: data, OK: true}
}

// NewErrorResult creates a failed result.
func NewErrorResult(errMsg string) Result {
	return Result{Error: errMsg, OK: false}
}

// WithWarning appends a warning to the result.
func (r Result) WithWarning(w string) Result {
	r.Warnings = append(r.Warnings, w)
	return r
}

// ValidationError represents a tool argument validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// GetString extracts a string argument from the args map.
func GetString(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetStringDefault extracts a string argument with a default value.
func GetStringDefault(args map[string]any, key, defaultVal string) string {
	if val, ok := GetString(args, key); ok {
		return val
	}
	return defaultVal
}

// GetInt extracts an integer argument from the args map.
func GetInt(args map[string]any, key string) (int, bool) {
	val, ok := args[key]
	if !ok {
		return 0, false
	}
	// JSON numbers arrive as float64
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetIntDefault extracts an integer argument with a default value.
func GetIntDefault(args map[string]any, key string, defaultVal int) int {
	if val, ok := GetInt(args, key); ok {
		return val
	}
	return defaultVal
}

// GetBool extracts a boolean argument from the args map.
func GetBool(args map[string]any, key string) (bool, bool) {
	val, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// GetBoolDefault extracts a boolean argument with a default value.
func GetBoolDefault(args map[string]any, key string, defaultVal bool) bool {
	if val, ok := GetBool(args, key); ok {
		return val
	}
	return defaultVal
}
