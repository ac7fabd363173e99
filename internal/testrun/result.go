package testrun

import (
	"slices"
	"time"
)

// Status is the outcome of one test case or file.
type Status string

const (
	Pass    Status = "pass"
	Fail    Status = "fail"
	Timeout Status = "timeout"
	Skip    Status = "skip"
)

// Result is one test case, or a whole file when its runner reports no cases.
type Result struct {
	File     string        `json:"file"`
	Name     string        `json:"name,omitempty"`
	Status   Status        `json:"status"`
	Elapsed  time.Duration `json:"elapsed"`
	Message  string        `json:"message,omitempty"`
	Location string        `json:"location,omitempty"`
}

// FileResult groups the results of one isolated file run.
type FileResult struct {
	File    string
	Results []Result
	Elapsed time.Duration
	Output  string
}

// Status returns the most severe status among the file's results.
func (f FileResult) Status() Status {
	worst := Skip
	for _, r := range f.Results {
		if severity(r.Status) > severity(worst) {
			worst = r.Status
		}
	}
	return worst
}

func severity(s Status) int {
	switch s {
	case Pass:
		return 1
	case Fail:
		return 2
	case Timeout:
		return 3
	}
	return 0
}

// Counts aggregates results by status.
type Counts struct {
	Total   int `json:"total"`
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Timeout int `json:"timeout"`
	Skip    int `json:"skip"`
}

// Ran is the number of results that were not skipped.
func (c Counts) Ran() int {
	return c.Total - c.Skip
}

// ResultSet holds every result of a run in completion order.
type ResultSet struct {
	Results []Result      `json:"results"`
	Elapsed time.Duration `json:"elapsed"`
}

func (s *ResultSet) Count() Counts {
	var c Counts
	for _, r := range s.Results {
		c.Total++
		switch r.Status {
		case Pass:
			c.Pass++
		case Fail:
			c.Fail++
		case Timeout:
			c.Timeout++
		case Skip:
			c.Skip++
		}
	}
	return c
}

// AllPassingFiles returns files whose every result passed or was skipped and
// at least one passed, in first-seen order.
func (s *ResultSet) AllPassingFiles() []string {
	order := make([]string, 0)
	passed := make(map[string]bool)
	bad := make(map[string]bool)
	for _, r := range s.Results {
		if _, seen := passed[r.File]; !seen && !bad[r.File] {
			order = append(order, r.File)
			passed[r.File] = false
		}
		switch r.Status {
		case Pass:
			passed[r.File] = true
		case Fail, Timeout:
			bad[r.File] = true
		}
	}

	out := make([]string, 0, len(order))
	for _, file := range order {
		if passed[file] && !bad[file] {
			out = append(out, file)
		}
	}
	return out
}

// AllMatching returns results with any of the given statuses.
func (s *ResultSet) AllMatching(statuses ...Status) []Result {
	out := make([]Result, 0)
	for _, r := range s.Results {
		if slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	return out
}
