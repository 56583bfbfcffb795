package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Show detailed version information including build details.`,
	Run: func(cmd *cobra.Command, args []string) {
		showVersion()
	},
}

func showVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fmt.Printf("ralph version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		fmt.Printf("  go: %s\n", runtime.Version())
		fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	fmt.Printf("ralph version %s\n", getVersion(info))

	vcsRevision := ""
	vcsTime := ""
	vcsModified := false

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		case "vcs.modified":
			vcsModified = setting.Value == "true"
		}
	}

	if vcsRevision != "" {
		fmt.Printf("  commit: %s\n", vcsRevision)
		if vcsModified {
			fmt.Printf("  modified: true\n")
		}
	}

	if vcsTime != "" {
		fmt.Printf("  built: %s\n", vcsTime)
	}

	fmt.Printf("  go: %s\n", info.GoVersion)
	fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if info.Main.Path != "" {
		fmt.Printf("  module: %s\n", info.Main.Path)
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			fmt.Printf("  module version: %s\n", info.Main.Version)
		}
	}
}

func getVersion(info *debug.BuildInfo) string {
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	if version != "dev" {
		return version
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) > 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}

	return "dev"
}
