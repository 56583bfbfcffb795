// Package cmd provides the ralph CLI's commands.
package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootRoot is the project root every command resolves its store, config,
// and worktrees relative to. Set by the --root persistent flag, defaulting
// to the current working directory.
var rootRoot string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Spec-driven multi-agent development orchestrator",
	Long: `ralph turns an approved spec into a dependency-ordered set of tasks,
runs each through a fixed agent pipeline (implement, review, test, QA) with
an iterative self-verification loop, and merges finished work back to trunk
through a three-tier merge engine.`,
	Version: getVersionString(),
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootRoot, "root", "", "project root (defaults to the current directory)")
	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// resolveRoot returns the configured --root, or the working directory if unset.
func resolveRoot() (string, error) {
	if rootRoot != "" {
		return rootRoot, nil
	}
	return os.Getwd()
}

// getVersionString returns a formatted version string using build info.
func getVersionString() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	}

	buildVersion := version
	buildCommit := commit
	buildDate := date

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		buildVersion = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if setting.Value != "" {
				buildCommit = setting.Value
				if len(buildCommit) > 7 {
					buildCommit = buildCommit[:7]
				}
			}
		case "vcs.time":
			if setting.Value != "" {
				buildDate = setting.Value
			}
		}
	}

	return fmt.Sprintf("%s (commit: %s, built: %s)", buildVersion, buildCommit, buildDate)
}
