package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/morozRed/kiln/internal/history"
)

type StatusSummary struct {
	Mode         string   `json:"mode"`
	Purpose      string   `json:"purpose"`
	RootPath     string   `json:"root_path"`
	Candidates   int      `json:"candidates"`
	Changed      int      `json:"changed"`
	Errors       int      `json:"errors,omitempty"`
	DurationMS   int64    `json:"duration_ms"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	ErrorFiles   []string `json:"error_files,omitempty"`
}

type AffectedSummary struct {
	Mode      string   `json:"mode"`
	RootPath  string   `json:"root_path"`
	Targets   []string `json:"targets"`
	Universe  string   `json:"universe"`
	Dependent []string `json:"dependents"`
}

type DoctorSummary struct {
	Mode        string   `json:"mode"`
	RootPath    string   `json:"root_path"`
	ConfigPath  string   `json:"config_path,omitempty"`
	Healthy     bool     `json:"healthy"`
	Files       int      `json:"files"`
	TestFiles   int      `json:"test_files"`
	LintFiles   int      `json:"lint_files"`
	Purposes    []string `json:"purposes,omitempty"`
	NodeVersion string   `json:"node_version,omitempty"`
	Problems    []string `json:"problems,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type TaskSummary struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
	Incremental   bool     `json:"incremental,omitempty"`
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func PrintStatusSummary(w io.Writer, summary StatusSummary, asJSON bool) error {
	if asJSON {
		return printJSON(w, summary)
	}

	fmt.Fprintf(w, "%s(%s): candidates=%d changed=%d duration=%dms\n",
		summary.Mode,
		summary.Purpose,
		summary.Candidates,
		summary.Changed,
		summary.DurationMS,
	)
	if len(summary.ChangedFiles) > 0 {
		fmt.Fprintf(w, "changed files (%d): %s\n", len(summary.ChangedFiles), SummarizePaths(summary.ChangedFiles, 8))
	}
	if len(summary.ErrorFiles) > 0 {
		fmt.Fprintf(w, "dependency errors (%d): %s\n", len(summary.ErrorFiles), SummarizePaths(summary.ErrorFiles, 8))
	}
	return nil
}

func PrintAffectedSummary(w io.Writer, summary AffectedSummary, asJSON bool) error {
	if asJSON {
		return printJSON(w, summary)
	}
	for _, file := range summary.Dependent {
		fmt.Fprintln(w, file)
	}
	return nil
}

func PrintTaskList(w io.Writer, list []TaskSummary, asJSON bool) error {
	if asJSON {
		return printJSON(w, list)
	}

	width := 0
	for _, task := range list {
		width = max(width, len(task.Name))
	}
	for _, task := range list {
		line := fmt.Sprintf("%-*s  %s", width, task.Name, task.Description)
		if len(task.Prerequisites) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(task.Prerequisites, ", "))
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	return nil
}

func PrintReport(w io.Writer, r *history.Report, display func(string) string, asJSON bool) error {
	if asJSON {
		return printJSON(w, r)
	}

	fmt.Fprintf(w, "%s: %s at %s\n", r.Task, r.Summary(), r.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "files: %d\n", len(r.Files))
	for _, failure := range r.Failures {
		fmt.Fprintf(w, "\n%s\n", failure.RenderMultiLine(display))
	}
	return nil
}

func PrintDoctorSummary(w io.Writer, summary DoctorSummary, asJSON bool) error {
	if asJSON {
		return printJSON(w, summary)
	}

	status := "issues"
	if summary.Healthy {
		status = "ok"
	}
	fmt.Fprintf(w, "doctor: %s\n", status)
	if summary.ConfigPath != "" {
		fmt.Fprintf(w, "config: %s\n", summary.ConfigPath)
	} else {
		fmt.Fprintln(w, "config: defaults")
	}
	fmt.Fprintf(w, "files: total=%d tests=%d lint=%d\n", summary.Files, summary.TestFiles, summary.LintFiles)
	if summary.NodeVersion != "" {
		fmt.Fprintf(w, "node: %s\n", summary.NodeVersion)
	}
	if len(summary.Purposes) > 0 {
		fmt.Fprintf(w, "recorded purposes: %s\n", strings.Join(summary.Purposes, ", "))
	}
	if len(summary.Problems) > 0 {
		fmt.Fprintf(w, "problems (%d):\n", len(summary.Problems))
		for _, problem := range summary.Problems {
			fmt.Fprintf(w, "  %s\n", problem)
		}
	}
	for _, suggestion := range summary.Suggestions {
		fmt.Fprintf(w, "next: %s\n", suggestion)
	}
	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
