package verify

import (
	"context"
	"testing"

	"github.com/ralph-run/ralph/internal/model"
)

func TestExtractPromiseRoundTrip(t *testing.T) {
	cases := []string{
		"IMPLEMENTATION_COMPLETE",
		"multi word promise with punctuation!",
	}
	for _, p := range cases {
		serialized := "some preamble\n<promise>" + p + "</promise>\ntrailing text"
		got, ok := ExtractPromise(serialized)
		if !ok {
			t.Fatalf("ExtractPromise(%q) did not find tag", serialized)
		}
		if got != p {
			t.Errorf("ExtractPromise() = %q, want %q", got, p)
		}
	}
}

func TestExtractPromiseCaseInsensitiveAndMultiline(t *testing.T) {
	out := "<PROMISE>\n  line one\n  line two\n</PROMISE>"
	got, ok := ExtractPromise(out)
	if !ok {
		t.Fatal("expected match")
	}
	if got != "line one\n  line two" {
		t.Errorf("got %q", got)
	}
}

func TestExtractPromiseMissing(t *testing.T) {
	if _, ok := ExtractPromise("no tags here"); ok {
		t.Error("expected no match")
	}
}

func TestVerifyStringMatch(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{Promise: "IMPLEMENTATION_COMPLETE", Method: model.MethodStringMatch}

	res := v.Verify(context.Background(), criteria, "work done.\n<promise>IMPLEMENTATION_COMPLETE</promise>", "")
	if !res.Passed {
		t.Errorf("Passed = false, want true: %s", res.Reason)
	}

	res = v.Verify(context.Background(), criteria, "work done, nothing else", "")
	if res.Passed {
		t.Error("Passed = true, want false when promise absent")
	}
}

func TestVerifySemanticNegativePattern(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{
		Method: model.MethodSemantic,
		Config: map[string]any{
			"negative_patterns": []any{"TODO", "not implemented"},
		},
	}
	res := v.Verify(context.Background(), criteria, "still has a TODO left", "")
	if res.Passed {
		t.Error("Passed = true, want false due to negative pattern")
	}
}

func TestVerifySemanticCheckFor(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{
		Method: model.MethodSemantic,
		Config: map[string]any{
			"check_for": []any{"handles empty input gracefully", "logs errors"},
		},
	}
	res := v.Verify(context.Background(), criteria, "the function now handles empty input gracefully and logs errors to stderr", "")
	if !res.Passed {
		t.Errorf("Passed = false, want true: %s", res.Reason)
	}

	res = v.Verify(context.Background(), criteria, "totally unrelated output about something else", "")
	if res.Passed {
		t.Error("Passed = true, want false when criteria words absent")
	}
}

func TestVerifyExternalSuccess(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{
		Method: model.MethodExternal,
		Config: map[string]any{
			"command":         "echo hello-world",
			"output_contains": "hello-world",
		},
	}
	res := v.Verify(context.Background(), criteria, "", t.TempDir())
	if !res.Passed {
		t.Errorf("Passed = false, want true: %s", res.Reason)
	}
}

func TestVerifyExternalNonZeroExit(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{
		Method: model.MethodExternal,
		Config: map[string]any{"command": "exit 1"},
	}
	res := v.Verify(context.Background(), criteria, "", t.TempDir())
	if res.Passed {
		t.Error("Passed = true, want false for nonzero exit")
	}
}

// TestVerifyMultiStage mirrors scenario S4: a multi-stage criterion with a
// string_match and an external stage, both required.
func TestVerifyMultiStage(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{
		Method: model.MethodMultiStage,
		Config: map[string]any{
			"require_all": true,
			"stages": []any{
				map[string]any{
					"name":     "promise-present",
					"method":   "string_match",
					"config":   map[string]any{"promise": "TESTS_PASS"},
					"required": true,
				},
				map[string]any{
					"name":     "tests-run",
					"method":   "external",
					"config":   map[string]any{"command": "echo ok"},
					"required": true,
				},
			},
		},
	}
	res := v.Verify(context.Background(), criteria, "<promise>TESTS_PASS</promise>", t.TempDir())
	if !res.Passed {
		t.Errorf("Passed = false, want true: %s", res.Reason)
	}
}

// TestVerifyMultiStageUnsupportedMethodFails asserts the deliberate
// deviation from the Python source: an unsupported stage method fails the
// stage instead of being silently skipped as passing.
func TestVerifyMultiStageUnsupportedMethodFails(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{
		Method: model.MethodMultiStage,
		Config: map[string]any{
			"stages": []any{
				map[string]any{
					"name":     "unsupported",
					"method":   "multi_stage",
					"required": true,
				},
			},
		},
	}
	res := v.Verify(context.Background(), criteria, "anything", "")
	if res.Passed {
		t.Error("Passed = true, want false for unsupported nested stage method")
	}
}

func TestVerifyUnknownMethod(t *testing.T) {
	v := New()
	criteria := model.CompletionCriteria{Method: model.VerificationMethod("bogus")}
	res := v.Verify(context.Background(), criteria, "anything", "")
	if res.Passed {
		t.Error("Passed = true, want false for unknown method")
	}
}
