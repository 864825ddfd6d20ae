package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"google.golang.org/genai"

	"krusty/internal/logging"
)

const (
	// maxBashOutput truncates command output above this many characters.
	maxBashOutput = 30000
	// maxBashTimeout caps the per-call timeout override.
	maxBashTimeout = 10 * time.Minute
)

// BashTool runs shell commands in the working directory.
type BashTool struct {
	workDir     string
	timeout     time.Duration
	gracePeriod time.Duration
}

// NewBashTool creates a bash tool rooted at workDir.
func NewBashTool(workDir string, timeout, gracePeriod time.Duration) *BashTool {
	return &BashTool{
		workDir:     workDir,
		timeout:     timeout,
		gracePeriod: gracePeriod,
	}
}

func (t *BashTool) Name() string {
	return "bash"
}

func (t *BashTool) Description() string {
	return `Executes a shell command in the working directory.

PARAMETERS:
- command (required): The command to run
- timeout (optional): Timeout in seconds, capped at 600

stdout and stderr are captured. Output over 30000 characters is
truncated. Non-zero exit codes are reported as failures. On timeout or
cancellation the process group receives SIGTERM, then SIGKILL after a
grace period.`
}

func (t *BashTool) Classification() Classification {
	return ClassMutating
}

func (t *BashTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"command": {
					Type:        genai.TypeString,
					Description: "The shell command to execute",
				},
				"timeout": {
					Type:        genai.TypeInteger,
					Description: "Timeout in seconds. Optional.",
				},
			},
			Required: []string{"command"},
		},
	}
}

func (t *BashTool) Validate(args map[string]any) error {
	cmd, ok := GetString(args, "command")
	if !ok || strings.TrimSpace(cmd) == "" {
		return NewValidationError("command", "is required")
	}
	if timeout, ok := GetInt(args, "timeout"); ok && timeout <= 0 {
		return NewValidationError("timeout", "must be positive")
	}
	return nil
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	command, _ := GetString(args, "command")

	timeout := t.timeout
	if secs, ok := GetInt(args, "timeout"); ok {
		timeout = time.Duration(secs) * time.Second
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = t.workDir
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = streamTo(ctx, &stdout)
	cmd.Stderr = &stderr

	// SIGTERM the process group first so children can clean up, escalate
	// to SIGKILL after the grace period.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			return cmd.Process.Kill()
		}
		go func(pgid int) {
			time.Sleep(t.gracePeriod)
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}(pgid)
		return nil
	}
	cmd.WaitDelay = t.gracePeriod + time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		logging.Warn("bash command timed out", "timeout", timeout, "command", command)
		return Result{
			Content: buildBashOutput(stdout.String(), stderr.String()),
			Error:   fmt.Sprintf("command timed out after %v", timeout),
			OK:      false,
		}, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	output := buildBashOutput(stdout.String(), stderr.String())
	metadata := map[string]any{"duration": elapsed.Round(time.Millisecond).String()}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			return Result{
				Content:  output,
				Error:    fmt.Sprintf("command exited with code %d", exitErr.ExitCode()),
				OK:       false,
				Metadata: metadata,
			}, nil
		}
		return NewErrorResult(fmt.Sprintf("command failed: %s", runErr)), nil
	}

	result := NewSuccessResult(output)
	result.Metadata = metadata
	return result, nil
}

// streamTo wraps buf so every chunk the command writes is also handed
// to the context's streaming callback, making output visible while the
// command still runs. The buffered copy stays the source of truth for
// the final result.
func streamTo(ctx context.Context, buf *bytes.Buffer) io.Writer {
	cb := GetStreamingCallback(ctx)
	if cb == nil {
		return buf
	}
	return &streamWriter{buf: buf, onText: cb}
}

type streamWriter struct {
	buf    *bytes.Buffer
	onText StreamingCallback
}

func (w *streamWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if n > 0 {
		w.onText(string(p[:n]))
	}
	return n, err
}

// buildBashOutput combines stdout and stderr, truncating oversized output.
func buildBashOutput(stdout, stderr string) string {
	var output strings.Builder
	output.WriteString(stdout)
	if stderr != "" {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n")
		output.WriteString(stderr)
	}

	result := output.String()
	if len(result) > maxBashOutput {
		total := len(result)
		result = result[:maxBashOutput] + fmt.Sprintf(
			"\n... (output truncated: showing %d of %d characters)", maxBashOutput, total)
	}
	if result == "" {
		result = "(no output)"
	}
	return result
}
