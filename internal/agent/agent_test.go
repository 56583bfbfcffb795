package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeStubAgent writes a shell script that mimics a stream-json CLI agent,
// used in place of a real `claude` binary which is not available in tests.
func writeStubAgent(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub agent script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "stub-agent.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunExtractsResultField(t *testing.T) {
	stub := writeStubAgent(t, `echo '{"type":"system"}'
echo '{"type":"result","result":"IMPLEMENTATION_COMPLETE: done","session_id":"sess-123"}'
`)
	r := New(stub)
	res, err := r.Run(context.Background(), "do the thing", t.TempDir(), []string{"Read", "Write"}, "sonnet", 5*time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.ExitOK {
		t.Fatalf("ExitOK = false, want true")
	}
	if res.Text != "IMPLEMENTATION_COMPLETE: done" {
		t.Errorf("Text = %q, want extracted result field", res.Text)
	}
	if res.SessionID != "sess-123" {
		t.Errorf("SessionID = %q, want sess-123", res.SessionID)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	stub := writeStubAgent(t, `echo '{"type":"result","result":"partial"}'
exit 1
`)
	r := New(stub)
	res, err := r.Run(context.Background(), "do the thing", t.TempDir(), nil, "", 5*time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitOK {
		t.Errorf("ExitOK = true, want false on nonzero exit")
	}
}

func TestRunTimeout(t *testing.T) {
	stub := writeStubAgent(t, `sleep 5
echo '{"type":"result","result":"too late"}'
`)
	r := New(stub)
	res, err := r.Run(context.Background(), "do the thing", t.TempDir(), nil, "", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitOK {
		t.Errorf("ExitOK = true, want false on timeout")
	}
}

func TestRunMissingExecutable(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist"))
	res, err := r.Run(context.Background(), "do the thing", t.TempDir(), nil, "", time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (failure reported via Result)", err)
	}
	if res.ExitOK {
		t.Errorf("ExitOK = true, want false for missing executable")
	}
}

func TestExtractResultNoJSONFallsBackEmpty(t *testing.T) {
	text, sessionID := extractResult("not json at all\njust some log lines\n")
	if text != "" || sessionID != "" {
		t.Errorf("extractResult() = (%q, %q), want empty pair so caller falls back to raw output", text, sessionID)
	}
}
