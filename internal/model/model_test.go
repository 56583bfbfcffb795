package model

import "testing"

func TestAgentRoleDefaults(t *testing.T) {
	cases := []struct {
		role    AgentRole
		promise string
		method  VerificationMethod
	}{
		{RoleArchitect, "DESIGN_COMPLETE", MethodStringMatch},
		{RoleCoder, "IMPLEMENTATION_COMPLETE", MethodExternal},
		{RoleReviewer, "REVIEW_PASSED", MethodSemantic},
		{RoleTester, "TESTS_PASSED", MethodExternal},
		{RoleQA, "QA_PASSED", MethodMultiStage},
	}
	for _, c := range cases {
		if got := c.role.DefaultPromise(); got != c.promise {
			t.Errorf("%s.DefaultPromise() = %q, want %q", c.role, got, c.promise)
		}
		if got := c.role.DefaultMethod(); got != c.method {
			t.Errorf("%s.DefaultMethod() = %q, want %q", c.role, got, c.method)
		}
	}
}

func TestAgentRoleDefaultsUnknownRole(t *testing.T) {
	var r AgentRole = "unknown"
	if got := r.DefaultPromise(); got != "" {
		t.Errorf("unknown role DefaultPromise() = %q, want empty", got)
	}
	if got := r.DefaultMethod(); got != MethodStringMatch {
		t.Errorf("unknown role DefaultMethod() = %q, want %q", got, MethodStringMatch)
	}
	if got := r.AllowedTools(); got != nil {
		t.Errorf("unknown role AllowedTools() = %v, want nil", got)
	}
}

func TestAllowedToolsPerRole(t *testing.T) {
	cases := []struct {
		role AgentRole
		want []string
	}{
		{RoleArchitect, []string{"task-spawn", "read", "search"}},
		{RoleCoder, []string{"task-spawn", "read", "write", "shell", "search"}},
		{RoleReviewer, []string{"task-spawn", "read", "search", "shell"}},
		{RoleTester, []string{"task-spawn", "read", "write", "shell", "search"}},
		{RoleQA, []string{"task-spawn", "read", "shell", "search"}},
	}
	for _, c := range cases {
		got := c.role.AllowedTools()
		if len(got) != len(c.want) {
			t.Fatalf("%s.AllowedTools() = %v, want %v", c.role, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("%s.AllowedTools()[%d] = %q, want %q", c.role, i, got[i], c.want[i])
			}
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := map[TaskStatus]bool{
		TaskStatusTodo:         false,
		TaskStatusImplementing: false,
		TaskStatusReviewing:    false,
		TaskStatusTesting:      false,
		TaskStatusDone:         true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestSpecStatusIsApprovedOrFurther(t *testing.T) {
	approved := map[SpecStatus]bool{
		SpecStatusDraft:        false,
		SpecStatusClarifying:   false,
		SpecStatusSpecified:    false,
		SpecStatusApproved:     true,
		SpecStatusPlanning:     true,
		SpecStatusPlanned:      true,
		SpecStatusImplementing: true,
		SpecStatusCompleted:    true,
		SpecStatusArchived:     false,
	}
	for status, want := range approved {
		if got := status.IsApprovedOrFurther(); got != want {
			t.Errorf("%s.IsApprovedOrFurther() = %v, want %v", status, got, want)
		}
	}
}

func TestBranchName(t *testing.T) {
	if got, want := BranchName("task-abc123"), "task/task-abc123"; got != want {
		t.Errorf("BranchName() = %q, want %q", got, want)
	}
}
