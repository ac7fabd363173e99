package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/morozRed/kiln/internal/build"
	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/history"
	"github.com/morozRed/kiln/internal/lint"
	"github.com/morozRed/kiln/internal/tasks"
	"github.com/morozRed/kiln/internal/watch"
	"github.com/spf13/cobra"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// newBuild loads the configuration and prepares a build. Commands whose
// stdout is their result pass quiet to move progress output to stderr.
func newBuild(cmd *cobra.Command, quiet bool) (*build.Build, *config.Config, error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return nil, nil, err
	}
	reporter, err := newReporter(cmd, quiet)
	if err != nil {
		return nil, nil, err
	}
	return build.New(cfg, reporter), cfg, nil
}

func RunBuild(cmd *cobra.Command, args []string) error {
	b, _, err := newBuild(cmd, false)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	return reported(b.Run(ctx, args, build.Options{}))
}

func RunTasks(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	b, _, err := newBuild(cmd, true)
	if err != nil {
		return err
	}

	defined := b.Runner().Tasks()
	list := make([]TaskSummary, 0, len(defined))
	for _, task := range defined {
		list = append(list, TaskSummary{
			Name:          task.Name,
			Description:   task.Description,
			Prerequisites: task.Prerequisites,
			Incremental:   task.Inputs != nil,
		})
	}
	return PrintTaskList(cmd.OutOrStdout(), list, asJSON)
}

// RunWatch rebuilds on every change. A configuration change reloads the
// configuration and starts over with a fresh build.
func RunWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	for {
		cfg, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		reporter, err := newReporter(cmd, false)
		if err != nil {
			return err
		}
		b := build.New(cfg, reporter)

		err = watch.Run(ctx, watch.FromConfig(cfg, reporter, func(ctx context.Context, resetTree bool) error {
			return reported(b.Run(ctx, args, build.Options{ResetTree: resetTree}))
		}))
		if !errors.Is(err, watch.ErrRestart) {
			return err
		}
	}
}

func RunAffected(cmd *cobra.Command, args []string) error {
	all, err := OptionalBoolFlag(cmd, "all", false)
	if err != nil {
		return err
	}
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	b, cfg, err := newBuild(cmd, true)
	if err != nil {
		return err
	}
	targets, err := absPaths(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	analyzer, err := b.Analyzer(ctx)
	if err != nil {
		return err
	}
	summary := AffectedSummary{Mode: "affected", RootPath: cfg.Root, Universe: "tests"}
	var universe []string
	if all {
		tree, err := b.Tree(ctx, false)
		if err != nil {
			return err
		}
		universe = tree.Files()
		summary.Universe = "all"
	} else if universe, err = b.TestFiles(ctx); err != nil {
		return err
	}

	dependents, err := analyzer.Dependents(ctx, universe, targets)
	if err != nil {
		return err
	}
	summary.Targets = relPaths(cfg.Root, targets)
	summary.Dependent = relPaths(cfg.Root, dependents)
	return PrintAffectedSummary(cmd.OutOrStdout(), summary, asJSON)
}

// RunStatus lists the files the next build would process for a purpose:
// "test" (the default), "lint", or the name of an incremental task.
func RunStatus(cmd *cobra.Command, args []string) error {
	start := time.Now()
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	b, cfg, err := newBuild(cmd, true)
	if err != nil {
		return err
	}
	purpose := build.TestPurpose
	if len(args) == 1 {
		purpose = args[0]
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	tree, err := b.Tree(ctx, false)
	if err != nil {
		return err
	}

	summary := StatusSummary{Mode: "status", Purpose: purpose, RootPath: cfg.Root}
	switch purpose {
	case build.TestPurpose:
		candidates, err := b.TestFiles(ctx)
		if err != nil {
			return err
		}
		analyzer, err := b.Analyzer(ctx)
		if err != nil {
			return err
		}
		result, err := analyzer.FindChangedFiles(ctx, candidates, purpose, nil)
		if err != nil {
			return err
		}
		summary.Candidates = len(candidates)
		summary.ChangedFiles = relPaths(cfg.Root, result.Changed)
		for _, depErr := range result.Errors {
			summary.ErrorFiles = append(summary.ErrorFiles, tree.Rel(depErr.File))
		}
	case lint.Purpose:
		candidates, err := tree.MatchingFiles(cfg.Lint.Include, cfg.Lint.Exclude)
		if err != nil {
			return err
		}
		changed, err := b.Store().FindNewer(candidates, purpose)
		if err != nil {
			return err
		}
		summary.Candidates = len(candidates)
		summary.ChangedFiles = relPaths(cfg.Root, changed)
	default:
		tc, ok := cfg.Tasks[purpose]
		if !ok || len(tc.Inputs) == 0 {
			return &UsageError{Err: errors.New("status needs test, lint, or a task with inputs; got " + purpose)}
		}
		candidates, err := tree.MatchingFiles(tc.Inputs, nil)
		if err != nil {
			return err
		}
		changed, err := b.Store().FindNewer(candidates, tasks.InputPurpose(purpose))
		if err != nil {
			return err
		}
		summary.Candidates = len(candidates)
		summary.ChangedFiles = relPaths(cfg.Root, changed)
	}
	summary.Changed = len(summary.ChangedFiles)
	summary.Errors = len(summary.ErrorFiles)
	summary.DurationMS = time.Since(start).Milliseconds()
	return PrintStatusSummary(cmd.OutOrStdout(), summary, asJSON)
}

func RunLast(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json", false)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	task := build.UnitTestTask
	if len(args) == 1 {
		task = args[0]
	}
	if err := history.ValidateTask(task); err != nil {
		return &UsageError{Err: err}
	}

	r, err := history.Load(cfg.ReportDir(), task)
	if errors.Is(err, history.ErrNoReport) {
		return errors.New("no test report for " + task + "; run kiln " + task + " first")
	}
	if err != nil {
		return err
	}
	return PrintReport(cmd.OutOrStdout(), r, func(file string) string {
		return relPath(cfg.Root, file)
	}, asJSON)
}

func relPaths(root string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		out = append(out, relPath(root, file))
	}
	return out
}

func relPath(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return file
	}
	return filepath.ToSlash(rel)
}
