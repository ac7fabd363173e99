package cli

import (
	"fmt"
	"strings"

	"github.com/morozRed/kiln/internal/build"
	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/shell"
	"github.com/spf13/cobra"
)

func RunDoctor(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	reporter, err := newReporter(cmd, true)
	if err != nil {
		return err
	}

	summary := DoctorSummary{
		Mode:       "doctor",
		RootPath:   cfg.Root,
		ConfigPath: cfg.Path,
	}
	for _, problem := range config.Validate(cfg) {
		summary.Problems = append(summary.Problems, problem.Error())
	}
	if len(summary.Problems) > 0 {
		summary.Suggestions = append(summary.Suggestions, "fix the configuration problems above")
		return PrintDoctorSummary(cmd.OutOrStdout(), summary, asJSON)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	b := build.New(cfg, reporter)
	tree, err := b.Tree(ctx, false)
	if err != nil {
		return err
	}
	summary.Files = tree.Len()
	tests, err := b.TestFiles(ctx)
	if err != nil {
		return err
	}
	summary.TestFiles = len(tests)
	lintFiles, err := tree.MatchingFiles(cfg.Lint.Include, cfg.Lint.Exclude)
	if err != nil {
		return err
	}
	summary.LintFiles = len(lintFiles)
	if summary.TestFiles == 0 {
		summary.Problems = append(summary.Problems, fmt.Sprintf("no files match tests.include (%s)", strings.Join(cfg.Tests.Include, ", ")))
	}

	if summary.Purposes, err = b.Store().Purposes(); err != nil {
		summary.Problems = append(summary.Problems, fmt.Sprintf("unreadable timestamp directory: %v", err))
		summary.Suggestions = append(summary.Suggestions, "run kiln clean")
	}

	expected, err := build.ExpectedNodeVersion(cfg.Abs(cfg.NodeVersionFile))
	if err != nil {
		summary.Problems = append(summary.Problems, err.Error())
	}
	result, err := shell.Run(ctx, shell.Command{Name: cfg.NodeCommand, Args: []string{"--version"}, Dir: cfg.Root})
	switch {
	case err != nil || result.ExitCode != 0:
		summary.Problems = append(summary.Problems, fmt.Sprintf("could not run %s --version", cfg.NodeCommand))
	default:
		summary.NodeVersion = strings.TrimSpace(result.Stdout)
		if expected != "" && expected != summary.NodeVersion {
			summary.Problems = append(summary.Problems, fmt.Sprintf("node is %s but %s expects %s", summary.NodeVersion, cfg.NodeVersionFile, expected))
			summary.Suggestions = append(summary.Suggestions, "switch to node "+expected)
		}
	}

	summary.Healthy = len(summary.Problems) == 0
	return PrintDoctorSummary(cmd.OutOrStdout(), summary, asJSON)
}
