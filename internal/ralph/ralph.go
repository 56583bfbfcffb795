// Package ralph implements the RalphLoop: the iterative self-verification
// loop that drives one pipeline stage by repeatedly invoking an agent until
// its completion promise verifies or a per-stage iteration budget is spent.
package ralph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/internal/verify"
)

// Record is one verification attempt's outcome, kept for finish() history
// and for the last-N-reasons shown in build_prompt_suffix.
type Record struct {
	Iteration int
	Passed    bool
	Reason    string
	Method    model.VerificationMethod
}

// Loop drives a single pipeline stage for one task/role pair.
type Loop struct {
	TaskID        string
	Role          model.AgentRole
	Iteration     int
	MaxIterations int
	Criteria      model.CompletionCriteria
	StartedAt     time.Time
	History       []Record

	verifier     *verify.Verifier
	startedCount int
}

// Start synthesises a loop for task/role. If criteria is nil,
// a default is built from the role's standard promise and verification
// method; if the task carries acceptance criteria and the default method
// is semantic or multi_stage, they are injected as check_for.
func Start(v *verify.Verifier, taskID string, role model.AgentRole, maxIterations int, criteria *model.CompletionCriteria, acceptanceCriteria []string) *Loop {
	var c model.CompletionCriteria
	if criteria != nil {
		c = *criteria
	} else {
		c = model.CompletionCriteria{
			Promise: role.DefaultPromise(),
			Method:  role.DefaultMethod(),
		}
		if len(acceptanceCriteria) > 0 && (c.Method == model.MethodSemantic || c.Method == model.MethodMultiStage) {
			checkFor := make([]any, len(acceptanceCriteria))
			for i, ac := range acceptanceCriteria {
				checkFor[i] = ac
			}
			c.Config = map[string]any{"check_for": checkFor}
		}
	}

	return &Loop{
		TaskID:        taskID,
		Role:          role,
		MaxIterations: maxIterations,
		Criteria:      c,
		StartedAt:     time.Now(),
		verifier:      v,
	}
}

// Increment bumps the iteration counter. Must be called before the first
// ShouldContinue; calling ShouldContinue at iteration 0 is a programming
// error, signalled via ErrNotStarted.
func (l *Loop) Increment() {
	l.Iteration++
	l.startedCount++
}

// ErrNotStarted signals ShouldContinue was called before any Increment.
var ErrNotStarted = fmt.Errorf("ralph: ShouldContinue called before first Increment")

// ShouldContinue extracts a promise from output and, if present, verifies
// it; returns whether the loop should keep iterating and why.
func (l *Loop) ShouldContinue(output, worktreePath string) (bool, string, error) {
	if l.startedCount == 0 {
		return false, "", ErrNotStarted
	}

	_, found := verify.ExtractPromise(output)
	if !found {
		if l.Iteration < l.MaxIterations {
			return true, "no promise", nil
		}
		return false, "max iterations without promise", nil
	}

	result := l.verifier.Verify(context.Background(), l.Criteria, output, worktreePath)
	l.History = append(l.History, Record{
		Iteration: l.Iteration,
		Passed:    result.Passed,
		Reason:    result.Reason,
		Method:    result.Method,
	})

	if result.Passed {
		return false, "completion verified: " + result.Reason, nil
	}
	if l.Iteration < l.MaxIterations {
		return true, "verification failed: " + result.Reason, nil
	}
	return false, fmt.Sprintf("max iterations, last: %s", result.Reason), nil
}

// Outcome is what Finish reports.
type Outcome struct {
	Success    bool
	Iterations int
	Elapsed    time.Duration
	History    []Record
}

// Finish closes out the loop. Success is true iff the last history record
// (if any) passed.
func (l *Loop) Finish() Outcome {
	success := len(l.History) > 0 && l.History[len(l.History)-1].Passed
	return Outcome{
		Success:    success,
		Iterations: l.Iteration,
		Elapsed:    time.Since(l.StartedAt),
		History:    l.History,
	}
}

// BuildPromptSuffix renders the markdown block an agent sees describing
// its remaining budget, the exact promise it must emit, the overall
// outcome it is working toward, and recent verification failures.
func (l *Loop) BuildPromptSuffix(taskTitle, outcome string, acceptanceCriteria []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Ralph Loop Status\n\n")
	fmt.Fprintf(&b, "Iteration %d/%d for role `%s` on task %q.\n\n", l.Iteration, l.MaxIterations, l.Role, taskTitle)
	fmt.Fprintf(&b, "You must signal completion by emitting `<promise>%s</promise>` verbatim when done.\n", l.Criteria.Promise)
	fmt.Fprintf(&b, "Verification method: `%s`.\n\n", l.Criteria.Method)

	if outcome != "" {
		fmt.Fprintf(&b, "Overall outcome: %s\n\n", outcome)
	}

	if len(acceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n\n")
		for _, ac := range acceptanceCriteria {
			fmt.Fprintf(&b, "- [ ] %s\n", ac)
		}
		b.WriteString("\n")
	}

	if len(l.History) > 0 {
		b.WriteString("Prior verification attempts:\n\n")
		start := 0
		if len(l.History) > 3 {
			start = len(l.History) - 3
		}
		for _, rec := range l.History[start:] {
			fmt.Fprintf(&b, "- iteration %d: %s\n", rec.Iteration, rec.Reason)
		}
	}

	return b.String()
}
