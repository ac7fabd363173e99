package build

import (
	"context"
	"fmt"
	"strings"

	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/shell"
	"github.com/morozRed/kiln/internal/tasks"
)

// customTask turns a configured command into a task. Tasks with inputs are
// skipped while their inputs are unchanged.
func (b *Build) customTask(name string, tc config.TaskConfig) tasks.Task {
	description := tc.Description
	if description == "" {
		description = "Run " + name
	}

	task := tasks.Task{
		Name:          name,
		Description:   description,
		Prerequisites: tc.After,
		Body: func(ctx context.Context) error {
			return b.reporter.Start(description, func(step *report.Step) error {
				cmd := shell.Sh(tc.Command)
				cmd.Dir = b.cfg.Root
				result, err := shell.Run(ctx, cmd)
				if err != nil {
					return err
				}
				if result.ExitCode != 0 {
					output := strings.TrimSpace(result.Stdout + "\n" + result.Stderr)
					if output != "" {
						step.Footer(output + "\n")
					}
					return tasks.NewTaskError("%s failed (exit code %d)", name, result.ExitCode)
				}
				if b.reporter.Debugging() && strings.TrimSpace(result.Stdout) != "" {
					step.Footer(result.Stdout)
				}
				return nil
			})
		},
	}
	if len(tc.Inputs) > 0 {
		task.Inputs = func() ([]string, error) {
			if b.tree == nil {
				return nil, fmt.Errorf("file tree not scanned")
			}
			return b.tree.MatchingFiles(tc.Inputs, nil)
		}
	}
	return task
}
