package build

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/morozRed/kiln/internal/deptree"
	"github.com/morozRed/kiln/internal/history"
	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/tasks"
	"github.com/morozRed/kiln/internal/testrun"
)

// TestPurpose is the change-cache tag for test files.
const TestPurpose = "test"

// UnitTestTask is the name reports are saved under.
const UnitTestTask = "unittest"

func (b *Build) unittest(ctx context.Context) error {
	files, err := b.tree.MatchingFiles(b.cfg.Tests.Include, b.cfg.Tests.Exclude)
	if err != nil {
		return err
	}

	changed, err := b.findTestFiles(ctx, files)
	if err != nil || len(changed) == 0 {
		return err
	}
	return b.runTests(ctx, changed)
}

func (b *Build) findTestFiles(ctx context.Context, files []string) ([]string, error) {
	var changed []string
	err := b.reporter.QuietStart("Finding "+b.cfg.Tests.Description, func(step *report.Step) error {
		result, err := b.analyzer.FindChangedFiles(ctx, files, TestPurpose, func(file string) {
			step.Debug(b.rel(file))
		})
		if err != nil {
			return err
		}

		if len(result.Errors) > 0 {
			step.Footer(RenderDependencyErrors(result.Errors, b.rel))
			return tasks.NewTaskError("Dependency analysis failed")
		}
		changed = result.Changed
		return nil
	})
	return changed, err
}

func (b *Build) runTests(ctx context.Context, files []string) error {
	return b.reporter.Start("Running "+b.cfg.Tests.Description, func(step *report.Step) error {
		started := time.Now()
		opts := testrun.Options{
			Config: testrun.Config{
				Command:  b.cfg.Tests.Command,
				Dir:      b.cfg.Root,
				Parser:   b.cfg.Tests.Parser,
				Timeout:  b.cfg.TestTimeout(),
				Parallel: b.cfg.Tests.Parallel,
			},
			Notify: func(fr testrun.FileResult) {
				step.Progress(fr.RenderCharacter())
			},
		}
		if b.reporter.Debugging() {
			opts.Output = os.Stdout
		}

		set, err := b.engine.RunIsolated(ctx, files, opts)
		if err != nil {
			return err
		}
		counts := set.Count()

		for _, failure := range set.AllMatching(testrun.Fail, testrun.Timeout) {
			step.Footer("\n" + failure.RenderMultiLine(b.rel) + "\n")
		}
		step.Footer(testrun.RenderSummary(counts, step.Elapsed()) + "\n")

		b.store.MarkAllProcessed(set.AllPassingFiles(), TestPurpose, started)
		if err := history.Save(b.cfg.ReportDir(), history.FromResultSet(UnitTestTask, files, set, time.Now())); err != nil {
			b.reporter.Warnf("could not save test report: %v", err)
		}

		if counts.Fail+counts.Timeout > 0 {
			return tasks.NewTaskError("Tests failed")
		}
		if counts.Ran() == 0 {
			return tasks.NewTaskError("No tests found")
		}
		return nil
	})
}

// RenderDependencyErrors renders analyzer errors grouped by file.
func RenderDependencyErrors(errs []*deptree.DependencyError, display func(string) string) string {
	byFile := make(map[string][]*deptree.DependencyError)
	order := make([]string, 0)
	for _, e := range errs {
		if _, ok := byFile[e.File]; !ok {
			order = append(order, e.File)
		}
		byFile[e.File] = append(byFile[e.File], e)
	}

	out := ""
	for _, file := range order {
		out += fmt.Sprintf("\n%s failed\n", display(file))
		for _, e := range byFile[file] {
			if e.Kind != deptree.DependencyNotFound {
				out += fmt.Sprintf("\n%s\n", e.Error())
				continue
			}
			out += fmt.Sprintf("\n%d: %s\n  %s\n", e.Line, e.Source, e.Error())
			if e.ResolvesTo != "" {
				out += fmt.Sprintf("  Resolves to: %s\n", display(e.ResolvesTo))
			}
		}
		out += "\n"
	}
	return out
}
