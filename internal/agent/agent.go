// Package agent implements AgentRunner: a single blocking operation that
// launches an external AI coding assistant process, captures its output,
// and reports exit status. Grounded on the teacher's claude_code_executor.go,
// stripped of the tmux/named-pipe/session-attach machinery that exists
// there for human session-watching -- out of scope for the execution
// kernel, which treats the AI runtime as opaque.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result is what one invocation of the runner produces.
type Result struct {
	Text      string
	SessionID string
	ExitOK    bool
}

// Runner is the AgentRunner interface.
type Runner interface {
	Run(ctx context.Context, prompt, cwd string, allowedTools []string, modelName string, timeout time.Duration) (Result, error)
}

// CLIRunner launches an external CLI (by default "claude") with
// --output-format stream-json and extracts the terminal result field,
// exactly as claude_code_executor.go's captureLogOutput does for its own
// logging enrichment.
type CLIRunner struct {
	Executable string
}

// New constructs a CLIRunner for executable (e.g. "claude").
func New(executable string) *CLIRunner {
	if executable == "" {
		executable = "claude"
	}
	return &CLIRunner{Executable: executable}
}

// Run launches the runner's executable with prompt in cwd, restricted to
// allowedTools, optionally pinned to modelName, bounded by timeout. The
// process tree is terminated if timeout fires or ctx is cancelled; Run
// always waits for exit before returning, never abandoning a zombie.
func (r *CLIRunner) Run(ctx context.Context, prompt, cwd string, allowedTools []string, modelName string, timeout time.Duration) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--dangerously-skip-permissions", "--output-format", "stream-json", "-p", prompt}
	if len(allowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(allowedTools, ","))
	}
	if modelName != "" {
		args = append(args, "--model", modelName)
	}

	cmd := exec.CommandContext(runCtx, r.Executable, args...)
	cmd.Dir = cwd

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()

	text, sessionID := extractResult(combined.String())

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		return Result{Text: "TIMEOUT: agent invocation exceeded " + timeout.String(), ExitOK: false}, nil
	case ctx.Err() != nil:
		return Result{Text: "cancelled", ExitOK: false}, ctx.Err()
	case err != nil:
		if _, ok := err.(*exec.Error); ok {
			return Result{Text: fmt.Sprintf("ERROR: agent process not found: %v", err), ExitOK: false}, nil
		}
		if text == "" {
			text = combined.String()
		}
		return Result{Text: text, SessionID: sessionID, ExitOK: false}, nil
	default:
		if text == "" {
			text = combined.String()
		}
		return Result{Text: text, SessionID: sessionID, ExitOK: true}, nil
	}
}

// extractResult scans stream-json output for the last line bearing
// type="result", returning its "result" and "session_id" fields. Falls
// back to empty strings (caller uses raw bytes) on any framing error.
func extractResult(output string) (text, sessionID string) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || line[0] != '{' {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}
		if frame["type"] != "result" {
			continue
		}
		if v, ok := frame["result"].(string); ok {
			text = v
		}
		if v, ok := frame["session_id"].(string); ok {
			sessionID = v
		}
		return text, sessionID
	}
	return "", ""
}
