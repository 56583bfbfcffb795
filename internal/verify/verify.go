// Package verify implements PromiseVerifier: judging whether an agent's
// completion promise is genuine. Grounded on the Python Ralph loop's
// PromiseVerifier, translated method-for-method into Go's (bool, error)
// idiom rather than tuple returns.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ralph-run/ralph/internal/model"
)

var promisePattern = regexp.MustCompile(`(?is)<promise>(.+?)</promise>`)

// ExtractPromise pulls the text between <promise>...</promise> tags out of
// agent output, matching case-insensitively across line breaks. Returns
// ("", false) if no tag is present.
func ExtractPromise(output string) (string, bool) {
	m := promisePattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Result is the outcome of one verification attempt.
type Result struct {
	Passed     bool
	Reason     string
	Method     model.VerificationMethod
	DurationMS int64
}

// Verifier checks completion criteria against agent output.
type Verifier struct{}

// New constructs a Verifier.
func New() *Verifier { return &Verifier{} }

// Verify dispatches to the method named by criteria.Method. worktreePath is
// used by external and multi_stage commands; ctx bounds external commands.
func (v *Verifier) Verify(ctx context.Context, criteria model.CompletionCriteria, output, worktreePath string) Result {
	start := time.Now()
	var passed bool
	var reason string

	switch criteria.Method {
	case model.MethodStringMatch:
		passed, reason = verifyStringMatch(criteria.Promise, output)
	case model.MethodSemantic:
		passed, reason = verifySemantic(output, criteria.Config)
	case model.MethodExternal:
		passed, reason = verifyExternal(ctx, criteria.Config, worktreePath)
	case model.MethodMultiStage:
		passed, reason = v.verifyMultiStage(ctx, output, criteria.Config, worktreePath)
	default:
		passed, reason = false, fmt.Sprintf("unknown verification method: %s", criteria.Method)
	}

	return Result{
		Passed:     passed,
		Reason:     reason,
		Method:     criteria.Method,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func verifyStringMatch(promise, output string) (bool, string) {
	if promise == "" {
		return false, "no promise text specified"
	}
	if output == "" {
		return false, "no output to verify"
	}
	if strings.Contains(strings.ToUpper(output), strings.ToUpper(promise)) {
		return true, fmt.Sprintf("promise %q found in output", promise)
	}
	return false, fmt.Sprintf("promise %q not found in output", promise)
}

// verifySemantic applies the heuristic token-overlap check: a check_for
// criterion passes if at least 30% of its words appear in the output.
// config keys: check_for ([]string), negative_patterns ([]string).
func verifySemantic(output string, config map[string]any) (bool, string) {
	if output == "" {
		return false, "no output to verify"
	}
	lowerOutput := strings.ToLower(output)

	for _, pattern := range stringSlice(config["negative_patterns"]) {
		if strings.Contains(lowerOutput, strings.ToLower(pattern)) {
			return false, fmt.Sprintf("found negative pattern: %q", pattern)
		}
	}

	checkFor := stringSlice(config["check_for"])
	if len(checkFor) == 0 {
		return true, "no specific criteria to verify"
	}

	var missing []string
	for _, criterion := range checkFor {
		words := strings.Fields(strings.ToLower(criterion))
		if len(words) == 0 {
			continue
		}
		found := 0
		for _, w := range words {
			if strings.Contains(lowerOutput, w) {
				found++
			}
		}
		if float64(found) < float64(len(words))*0.3 {
			missing = append(missing, criterion)
		}
	}

	if len(missing) > 0 {
		if len(missing) == 1 {
			return false, fmt.Sprintf("criterion not evident: %s", missing[0])
		}
		limit := missing
		if len(limit) > 3 {
			limit = limit[:3]
		}
		return false, fmt.Sprintf("criteria not evident: %s", strings.Join(limit, ", "))
	}
	return true, "all criteria appear to be met"
}

// verifyExternal shells out to config["command"] via sh -c, exactly as the
// original's subprocess.run(shell=True) does, and checks exit code plus
// optional output substrings. config keys: command (string, required),
// success_exit_code (int, default 0), output_contains, output_not_contains
// (string), timeout (seconds, int, default 300), working_dir (string,
// relative to worktreePath, default ".").
func verifyExternal(ctx context.Context, config map[string]any, worktreePath string) (bool, string) {
	command, _ := config["command"].(string)
	if command == "" {
		return false, "no command specified for external verification"
	}

	expectedExit := intOr(config["success_exit_code"], 0)
	outputContains, _ := config["output_contains"].(string)
	outputNotContains, _ := config["output_not_contains"].(string)
	timeoutSec := intOr(config["timeout"], 300)
	workingDir, _ := config["working_dir"].(string)
	if workingDir == "" {
		workingDir = "."
	}

	cwd := worktreePath
	if cwd != "" && workingDir != "." {
		cwd = filepath.Join(cwd, workingDir)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	combined := out.String()

	if runCtx.Err() == context.DeadlineExceeded {
		return false, fmt.Sprintf("command timed out after %ds", timeoutSec)
	}
	if _, ok := err.(*exec.Error); ok {
		return false, "command not found or working directory doesn't exist"
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return false, fmt.Sprintf("command failed: %v", err)
	}

	if exitCode != expectedExit {
		preview := combined
		if len(preview) > 500 {
			preview = preview[:500]
		}
		if preview == "" {
			preview = "no output"
		}
		return false, fmt.Sprintf("command exited with %d, expected %d. output: %s", exitCode, expectedExit, preview)
	}

	if outputContains != "" && !strings.Contains(combined, outputContains) {
		return false, fmt.Sprintf("output doesn't contain required: %q", outputContains)
	}
	if outputNotContains != "" && strings.Contains(combined, outputNotContains) {
		return false, fmt.Sprintf("output contains forbidden: %q", outputNotContains)
	}
	return true, "external verification passed"
}

type stageResult struct {
	name     string
	passed   bool
	reason   string
	required bool
}

// verifyMultiStage runs stages sequentially. Deliberate deviation from the
// Python source: an unsupported stage method fails that stage rather than
// being skipped-as-passed, per the specification's explicit text.
func (v *Verifier) verifyMultiStage(ctx context.Context, output string, config map[string]any, worktreePath string) (bool, string) {
	stagesRaw, _ := config["stages"].([]any)
	requireAll := true
	if ra, ok := config["require_all"].(bool); ok {
		requireAll = ra
	}

	if len(stagesRaw) == 0 {
		return true, "no verification stages defined"
	}

	var results []stageResult
	for _, raw := range stagesRaw {
		stage, _ := raw.(map[string]any)
		name, _ := stage["name"].(string)
		if name == "" {
			name = "unnamed"
		}
		methodStr, _ := stage["method"].(string)
		if methodStr == "" {
			methodStr = string(model.MethodStringMatch)
		}
		stageConfig, _ := stage["config"].(map[string]any)
		if stageConfig == nil {
			stageConfig = map[string]any{}
		}
		required := true
		if r, ok := stage["required"].(bool); ok {
			required = r
		}

		method := model.VerificationMethod(methodStr)
		var passed bool
		var reason string

		switch method {
		case model.MethodStringMatch:
			promise, _ := stageConfig["promise"].(string)
			passed, reason = verifyStringMatch(promise, output)
		case model.MethodSemantic:
			passed, reason = verifySemantic(output, stageConfig)
		case model.MethodExternal:
			passed, reason = verifyExternal(ctx, stageConfig, worktreePath)
		default:
			passed, reason = false, fmt.Sprintf("unsupported method in multi-stage: %s", methodStr)
		}

		results = append(results, stageResult{name: name, passed: passed, reason: reason, required: required})

		if !passed && required && requireAll {
			return false, fmt.Sprintf("stage %q failed: %s", name, reason)
		}
	}

	var failedRequired []stageResult
	for _, r := range results {
		if r.required && !r.passed {
			failedRequired = append(failedRequired, r)
		}
	}
	if len(failedRequired) > 0 {
		parts := make([]string, len(failedRequired))
		for i, r := range failedRequired {
			parts[i] = fmt.Sprintf("%s: %s", r.name, r.reason)
		}
		return false, fmt.Sprintf("failed stages: %s", strings.Join(parts, "; "))
	}

	passedCount := 0
	for _, r := range results {
		if r.passed {
			passedCount++
		}
	}
	return true, fmt.Sprintf("all %d/%d verification stages passed", passedCount, len(results))
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intOr(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}
