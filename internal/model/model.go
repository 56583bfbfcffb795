// Package model defines the core data structures shared by every component
// of the orchestrator: specs, tasks, completion contracts, and the
// short-lived observability rows written during execution.
package model

import "time"

// SpecStatus is the lifecycle state of a Spec.
type SpecStatus string

const (
	SpecStatusDraft        SpecStatus = "draft"
	SpecStatusClarifying   SpecStatus = "clarifying"
	SpecStatusSpecified    SpecStatus = "specified"
	SpecStatusApproved     SpecStatus = "approved"
	SpecStatusPlanning     SpecStatus = "planning"
	SpecStatusPlanned      SpecStatus = "planned"
	SpecStatusImplementing SpecStatus = "implementing"
	SpecStatusCompleted    SpecStatus = "completed"
	SpecStatusArchived     SpecStatus = "archived"
)

// IsApprovedOrFurther reports whether s authorizes task execution, per the
// data model invariant that a task may only run once its spec has reached
// "approved" or a later lifecycle stage.
func (s SpecStatus) IsApprovedOrFurther() bool {
	switch s {
	case SpecStatusApproved, SpecStatusPlanning, SpecStatusPlanned, SpecStatusImplementing, SpecStatusCompleted:
		return true
	default:
		return false
	}
}

// SourceKind identifies what kind of document a Spec was distilled from.
type SourceKind string

const (
	SourceKindBRD  SourceKind = "brd"
	SourceKindPRD  SourceKind = "prd"
	SourceKindNone SourceKind = "none"
)

// Spec is an approved unit of work that authorizes one or more tasks.
type Spec struct {
	ID         string
	Title      string
	Status     SpecStatus
	SourceKind SourceKind
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Metadata   map[string]any
}

// TaskStatus is the state-machine position of a Task within the pipeline.
type TaskStatus string

const (
	TaskStatusTodo         TaskStatus = "todo"
	TaskStatusImplementing TaskStatus = "implementing"
	TaskStatusReviewing    TaskStatus = "reviewing"
	TaskStatusTesting      TaskStatus = "testing"
	TaskStatusDone         TaskStatus = "done"
)

// Terminal reports whether status represents a finished task.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone
}

// AgentRole names one of the fixed pipeline stage operators.
type AgentRole string

const (
	RoleArchitect AgentRole = "architect"
	RoleCoder     AgentRole = "coder"
	RoleReviewer  AgentRole = "reviewer"
	RoleTester    AgentRole = "tester"
	RoleQA        AgentRole = "qa"
)

// DefaultPromise returns the standard completion promise an agent of role r
// is expected to emit.
func (r AgentRole) DefaultPromise() string {
	switch r {
	case RoleArchitect:
		return "DESIGN_COMPLETE"
	case RoleCoder:
		return "IMPLEMENTATION_COMPLETE"
	case RoleReviewer:
		return "REVIEW_PASSED"
	case RoleTester:
		return "TESTS_PASSED"
	case RoleQA:
		return "QA_PASSED"
	default:
		return ""
	}
}

// DefaultMethod returns the standard verification method used for role r
// when no explicit CompletionCriteria is configured.
func (r AgentRole) DefaultMethod() VerificationMethod {
	switch r {
	case RoleArchitect:
		return MethodStringMatch
	case RoleCoder:
		return MethodExternal
	case RoleReviewer:
		return MethodSemantic
	case RoleTester:
		return MethodExternal
	case RoleQA:
		return MethodMultiStage
	default:
		return MethodStringMatch
	}
}

// AllowedTools returns the capability-set names this role may use, per the
// fixed role-to-tools table.
func (r AgentRole) AllowedTools() []string {
	switch r {
	case RoleArchitect:
		return []string{"task-spawn", "read", "search"}
	case RoleCoder:
		return []string{"task-spawn", "read", "write", "shell", "search"}
	case RoleReviewer:
		return []string{"task-spawn", "read", "search", "shell"}
	case RoleTester:
		return []string{"task-spawn", "read", "write", "shell", "search"}
	case RoleQA:
		return []string{"task-spawn", "read", "shell", "search"}
	default:
		return nil
	}
}

// FollowUpCategory tags a follow-up task an agent proposed mid-stage.
type FollowUpCategory string

const (
	FollowUpPlaceholder FollowUpCategory = "PLACEHOLDER"
	FollowUpTechDebt    FollowUpCategory = "TECH-DEBT"
	FollowUpRefactor    FollowUpCategory = "REFACTOR"
	FollowUpTestGap     FollowUpCategory = "TEST-GAP"
	FollowUpEdgeCase    FollowUpCategory = "EDGE-CASE"
	FollowUpDoc         FollowUpCategory = "DOC"
)

// DependencyPolicy controls how a task reacts to a failed dependency.
type DependencyPolicy string

const (
	DependencyPolicyWait DependencyPolicy = "wait"
	DependencyPolicyFail DependencyPolicy = "fail"
	DependencyPolicySkip DependencyPolicy = "skip"
)

// Task is a unit of execution driven through the pipeline.
type Task struct {
	ID                 string
	SpecID             string
	Title              string
	Description        string
	Status             TaskStatus
	Priority            int
	DependsOn          []string
	DependencyPolicy    DependencyPolicy
	Iteration          int
	WorktreeID         string
	Assignee           string
	AcceptanceCriteria []string
	Completion         *CompletionSpec
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	Metadata           map[string]any
}

// CompletionSpec is the per-task, per-role completion contract.
type CompletionSpec struct {
	Outcome            string
	AcceptanceCriteria []string
	PerRole            map[AgentRole]CompletionCriteria
}

// VerificationMethod is the closed set of ways a promise can be checked.
type VerificationMethod string

const (
	MethodStringMatch VerificationMethod = "string_match"
	MethodSemantic    VerificationMethod = "semantic"
	MethodExternal    VerificationMethod = "external"
	MethodMultiStage  VerificationMethod = "multi_stage"
)

// CompletionCriteria is the rule deciding whether a declared promise is
// genuine: a promise string, a dispatch method, and method-specific config.
type CompletionCriteria struct {
	Promise       string
	Description   string
	Method        VerificationMethod
	Config        map[string]any
	MaxIterations int
}

// ExecutionLogEntry is one append-only record of a single ralph iteration
// or stage outcome.
type ExecutionLogEntry struct {
	ID         string
	TaskID     string
	StageName  string
	AgentRole  AgentRole
	Iteration  int
	Output     string
	Passed     bool
	DurationMS int64
	Timestamp  time.Time
}

// AgentRegistration is a short-lived observability row naming which slot is
// working on which task, deleted on stage exit.
type AgentRegistration struct {
	SlotID       int
	TaskID       string
	AgentRole    AgentRole
	WorktreePath string
	StartedAt    time.Time
}

// Worktree describes an isolated filesystem checkout for one task.
type Worktree struct {
	TaskID string
	Path   string
	Branch string
	Head   string
}

// BranchName returns the task branch name for taskID, per the fixed naming
// convention.
func BranchName(taskID string) string {
	return "task/" + taskID
}
