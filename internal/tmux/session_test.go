package tmux

import (
	"testing"
)

func TestDefaultSessionConfig(t *testing.T) {
	config := DefaultSessionConfig()
	
	if !config.Enabled {
		t.Error("Expected Enabled to be true")
	}
	
	if config.TmuxCommand != "tmux" {
		t.Errorf("Expected TmuxCommand to be 'tmux', got '%s'", config.TmuxCommand)
	}
	
	if config.HistoryLimit != 50000 {
		t.Errorf("Expected HistoryLimit to be 50000, got %d", config.HistoryLimit)
	}
}


func TestSessionOptionsCreation(t *testing.T) {
	opts := SessionOptions{
		Context:    "test",
		Identifier: "test-session",
		WorkingDir: "/tmp",
		Command:    "echo hello",
		Metadata: map[string]string{
			"created_by": "test",
		},
	}
	
	if opts.Context != "test" {
		t.Errorf("Expected Context to be 'test', got '%s'", opts.Context)
	}
	
	if opts.Identifier != "test-session" {
		t.Errorf("Expected Identifier to be 'test-session', got '%s'", opts.Identifier)
	}
	
	if opts.Command != "echo hello" {
		t.Errorf("Expected Command to be 'echo hello', got '%s'", opts.Command)
	}
}

func TestSessionStatusValues(t *testing.T) {
	if StatusRunning != "running" {
		t.Errorf("Expected StatusRunning to be 'running', got '%s'", StatusRunning)
	}
	if StatusExited != "exited" {
		t.Errorf("Expected StatusExited to be 'exited', got '%s'", StatusExited)
	}
	if StatusRunning == StatusExited {
		t.Error("Expected StatusRunning and StatusExited to be distinct")
	}
}

func TestSessionStatusDefaultsToZeroValue(t *testing.T) {
	s := &Session{SessionName: "ralph-worker-test-1"}
	if s.Status != "" {
		t.Errorf("Expected a freshly constructed Session to have no status set, got '%s'", s.Status)
	}

	s.Status = StatusRunning
	if s.Status != StatusRunning {
		t.Errorf("Expected Status to be settable to StatusRunning, got '%s'", s.Status)
	}

	s.Status = StatusExited
	if s.Status != StatusExited {
		t.Errorf("Expected Status to be settable to StatusExited, got '%s'", s.Status)
	}
}