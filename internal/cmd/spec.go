package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralph-run/ralph/internal/model"
	"github.com/ralph-run/ralph/pkg/utils"
)

func init() {
	rootCmd.AddCommand(specCmd)
	specCmd.AddCommand(specListCmd, specShowCmd, specApproveCmd, specAddCmd)
}

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Manage specs",
}

var specListCmd = &cobra.Command{
	Use:   "list",
	Short: "List specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		specs, err := st.ListSpecs("")
		if err != nil {
			return fmt.Errorf("list specs: %w", err)
		}
		newPrinter().PrintSpecs(specs)
		return nil
	},
}

var specShowCmd = &cobra.Command{
	Use:   "show <spec-id>",
	Short: "Show one spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		spec, err := st.GetSpec(args[0])
		if err != nil {
			return fmt.Errorf("get spec: %w", err)
		}
		newPrinter().PrintSpecs([]*model.Spec{spec})
		return nil
	},
}

var specApproveCmd = &cobra.Command{
	Use:   "approve <spec-id>",
	Short: "Approve a spec, authorizing its tasks to run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UpdateSpecStatus(args[0], model.SpecStatusApproved); err != nil {
			return fmt.Errorf("approve spec: %w", err)
		}
		newPrinter().PrintSuccess(fmt.Sprintf("Approved %s", args[0]))
		return nil
	},
}

var specAddTitle string
var specAddSource string
var specAddFile string

var specAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new spec from a markdown file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := loadApp()
		if err != nil {
			return err
		}
		defer st.Close()

		if specAddTitle == "" {
			return fmt.Errorf("--title is required")
		}

		id := "spec-" + utils.GenerateShortID()
		now := time.Now()
		spec := &model.Spec{
			ID:         id,
			Title:      specAddTitle,
			Status:     model.SpecStatusDraft,
			SourceKind: model.SourceKind(specAddSource),
			CreatedAt:  now,
			UpdatedAt:  now,
			Metadata:   map[string]any{},
		}
		if spec.SourceKind == "" {
			spec.SourceKind = model.SourceKindNone
		}

		if err := st.CreateSpec(spec); err != nil {
			return fmt.Errorf("create spec: %w", err)
		}

		if specAddFile != "" {
			body, err := os.ReadFile(specAddFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", specAddFile, err)
			}
			dir := filepath.Join(cfg.Root, "specs", id)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			if err := os.WriteFile(filepath.Join(dir, "spec.md"), body, 0o644); err != nil {
				return fmt.Errorf("write spec.md: %w", err)
			}
		}

		newPrinter().PrintSuccess(fmt.Sprintf("Created spec %s", id))
		return nil
	},
}

func init() {
	specAddCmd.Flags().StringVar(&specAddTitle, "title", "", "spec title")
	specAddCmd.Flags().StringVar(&specAddSource, "source", "", "source kind: brd, prd, or none")
	specAddCmd.Flags().StringVar(&specAddFile, "file", "", "path to the spec's markdown body")
}
