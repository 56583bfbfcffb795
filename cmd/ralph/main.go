// Command ralph is the spec-driven multi-agent development orchestrator's
// CLI entry point.
package main

import (
	"github.com/ralph-run/ralph/internal/cmd"
)

func main() {
	cmd.Execute()
}
