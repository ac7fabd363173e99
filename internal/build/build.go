// Package build defines kiln's tasks over the configured repository and runs
// them: clean, version, lint, unittest, custom command tasks, and the quick
// and default aggregates.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/deptree"
	"github.com/morozRed/kiln/internal/filetree"
	"github.com/morozRed/kiln/internal/lint"
	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/tasks"
	"github.com/morozRed/kiln/internal/testrun"
	"github.com/morozRed/kiln/internal/timestamps"
)

const (
	OKMessage      = "BUILD OK"
	FailureMessage = "BUILD FAILURE"
	DefaultTask    = "default"
)

// Options for one Run.
type Options struct {
	// ResetTree rescans the file tree even if an earlier run scanned it.
	ResetTree bool
}

// Build holds everything that survives between runs in one process, so watch
// mode reuses the scanned tree and the analyzer's parsed imports.
type Build struct {
	cfg      *config.Config
	reporter *report.Reporter
	store    *timestamps.Store
	engine   *testrun.Engine
	linter   *lint.Linter
	version  *versionCheck

	tree     *filetree.Tree
	analyzer *deptree.Analyzer
}

func New(cfg *config.Config, reporter *report.Reporter) *Build {
	store := timestamps.New(cfg.Root, cfg.TimestampDir())
	store.Warn = reporter

	linter := lint.New(lint.Config{
		Command:   cfg.Lint.Command,
		Parser:    cfg.Lint.Parser,
		BatchSize: cfg.Lint.BatchSize,
		Dir:       cfg.Root,
	}, store)

	b := &Build{
		cfg:      cfg,
		reporter: reporter,
		store:    store,
		engine:   testrun.NewEngine(),
		linter:   linter,
		version:  &versionCheck{},
	}
	linter.Display = b.rel
	return b
}

// Store is the change cache used by the build.
func (b *Build) Store() *timestamps.Store {
	return b.store
}

// Run runs names and prints the BUILD OK / BUILD FAILURE line. The returned
// error is the run's failure, if any.
func (b *Build) Run(ctx context.Context, names []string, opts Options) error {
	if len(names) == 0 {
		names = []string{DefaultTask}
	}

	err := b.run(ctx, names, opts)
	if err == nil {
		b.reporter.Println("\n" + OKMessage)
		return nil
	}

	var failure *tasks.Failure
	if errors.As(err, &failure) {
		b.reporter.Println(fmt.Sprintf("\n%v\n%s (%s)", failure.Err, FailureMessage, failure.Task))
	} else {
		b.reporter.Println(fmt.Sprintf("\n%v\n%s", err, FailureMessage))
	}
	return err
}

func (b *Build) run(ctx context.Context, names []string, opts Options) error {
	runner := b.Runner()
	// Unknown names fail before the tree is scanned.
	for _, name := range names {
		if !hasTask(runner, name) {
			return runner.Run(ctx, names...)
		}
	}
	if _, err := b.Tree(ctx, opts.ResetTree); err != nil {
		return err
	}
	return runner.Run(ctx, names...)
}

// Tree returns the scanned file tree, scanning on first use or when reset.
func (b *Build) Tree(ctx context.Context, reset bool) (*filetree.Tree, error) {
	if b.tree != nil && !reset {
		return b.tree, nil
	}

	var tree *filetree.Tree
	err := b.reporter.Start("Scanning file tree", func(step *report.Step) error {
		var err error
		tree, err = filetree.Scan(ctx, b.cfg.Root, b.cfg.Exclude)
		if err != nil {
			return err
		}
		step.Debug(fmt.Sprintf("%d files", tree.Len()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.tree = tree
	if b.analyzer == nil {
		b.analyzer = deptree.New(tree, b.store)
	} else {
		b.analyzer.SetTree(tree)
	}
	return tree, nil
}

// Analyzer returns the dependency analyzer for the current tree.
func (b *Build) Analyzer(ctx context.Context) (*deptree.Analyzer, error) {
	if _, err := b.Tree(ctx, false); err != nil {
		return nil, err
	}
	return b.analyzer, nil
}

// TestFiles returns the configured test files of the current tree.
func (b *Build) TestFiles(ctx context.Context) ([]string, error) {
	tree, err := b.Tree(ctx, false)
	if err != nil {
		return nil, err
	}
	return tree.MatchingFiles(b.cfg.Tests.Include, b.cfg.Tests.Exclude)
}

// Runner returns a fresh runner with every task defined. Each run gets its
// own runner so every task can run once per run.
func (b *Build) Runner() *tasks.Runner {
	r := tasks.NewRunner()
	r.Cache = b.store

	custom := make([]string, 0, len(b.cfg.Tasks))
	for name := range b.cfg.Tasks {
		custom = append(custom, name)
	}
	sort.Strings(custom)

	quick := append([]string{"version", "lint"}, custom...)
	quick = append(quick, "unittest")

	r.Define(tasks.Task{
		Name:          "default",
		Description:   "Clean and rebuild",
		Prerequisites: []string{"clean", "quick"},
	})
	r.Define(tasks.Task{
		Name:        "clean",
		Description: "Erase all generated and incremental files",
		Body:        b.clean,
	})
	r.Define(tasks.Task{
		Name:          "quick",
		Description:   "Perform an incremental build",
		Prerequisites: quick,
	})
	r.Define(tasks.Task{
		Name:        "version",
		Description: "Check Node.js version",
		Body:        b.checkVersion,
	})
	r.Define(tasks.Task{
		Name:        "lint",
		Description: fmt.Sprintf("Lint %s (incremental)", b.cfg.Lint.Description),
		Body:        b.lint,
	})
	r.Define(tasks.Task{
		Name:        "unittest",
		Description: fmt.Sprintf("Run %s (incremental)", b.cfg.Tests.Description),
		Body:        b.unittest,
	})
	for _, name := range custom {
		r.Define(b.customTask(name, b.cfg.Tasks[name]))
	}
	return r
}

func (b *Build) clean(ctx context.Context) error {
	return b.reporter.Start("Deleting generated files", func(*report.Step) error {
		return os.RemoveAll(b.cfg.GeneratedPath())
	})
}

func (b *Build) lint(ctx context.Context) error {
	files, err := b.tree.MatchingFiles(b.cfg.Lint.Include, b.cfg.Lint.Exclude)
	if err != nil {
		return err
	}
	return b.linter.Validate(ctx, lint.Request{
		Description: b.cfg.Lint.Description,
		Files:       files,
		Reporter:    b.reporter,
	})
}

func (b *Build) rel(file string) string {
	if b.tree == nil {
		return file
	}
	return b.tree.Rel(file)
}

func hasTask(r *tasks.Runner, name string) bool {
	for _, task := range r.Tasks() {
		if task.Name == name {
			return true
		}
	}
	return false
}
