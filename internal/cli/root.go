package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kiln [task...]",
		Short: "Incremental lint and test runner for JavaScript and TypeScript repositories",
		Long: `Kiln runs a repository's build tasks and skips work whose inputs have not
changed. Tests are rerun only when the test file or something it imports,
directly or transitively, changed since the test last passed.

With no task, kiln runs "default" (clean, then quick).`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          RunBuild,
	}
	rootCmd.PersistentFlags().Bool("debug", false, "Print debug output and stream test output")
	rootCmd.PersistentFlags().String("config", "", "Path to kiln.yaml or kiln.toml (default: search --root)")
	rootCmd.PersistentFlags().String("root", "", "Repository root (default: working directory)")
	rootCmd.SetVersionTemplate("kiln {{.Version}}\n")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the available tasks",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  RunTasks,
	}
	tasksCmd.Flags().Bool("json", false, "Print machine-readable task list")

	watchCmd := &cobra.Command{
		Use:   "watch [task...]",
		Short: "Rebuild whenever files change",
		RunE:  RunWatch,
	}

	affectedCmd := &cobra.Command{
		Use:   "affected <file...>",
		Short: "List the test files that depend on the given files",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE:  RunAffected,
	}
	affectedCmd.Flags().Bool("all", false, "Consider every file in the tree, not only tests")
	affectedCmd.Flags().Bool("json", false, "Print machine-readable results")

	statusCmd := &cobra.Command{
		Use:   "status [test|lint|<task>]",
		Short: "Show which files the next build would process",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE:  RunStatus,
	}
	statusCmd.Flags().Bool("json", false, "Print machine-readable status output")

	lastCmd := &cobra.Command{
		Use:   "last [task]",
		Short: "Show the result of the last test run",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE:  RunLast,
	}
	lastCmd.Flags().Bool("json", false, "Print the stored report as JSON")

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate kiln configuration and toolchain",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  RunDoctor,
	}
	doctorCmd.Flags().Bool("json", false, "Print machine-readable doctor output")

	installHookCmd := &cobra.Command{
		Use:   "install-hook",
		Short: "Install git pre-commit hook running kiln quick",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  RunInstallHook,
	}

	rootCmd.AddCommand(
		tasksCmd,
		watchCmd,
		affectedCmd,
		statusCmd,
		lastCmd,
		doctorCmd,
		installHookCmd,
	)

	return rootCmd
}
