package testrun

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/morozRed/kiln/internal/shell"
)

// Parser turns the output of one file's process into results. Returning no
// results means the output carried no recognizable cases.
type Parser interface {
	Name() string
	Parse(file string, run shell.Result) []Result
}

var parsers = map[string]Parser{
	"exit-code": exitCodeParser{},
	"tap":       tapParser{},
	"jest":      jestParser{name: "jest"},
	"vitest":    jestParser{name: "vitest"},
}

// LookupParser returns the parser registered under name.
func LookupParser(name string) (Parser, error) {
	if name == "" {
		name = "exit-code"
	}
	p, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("unknown test output parser %q (known: %s)", name, strings.Join(ParserNames(), ", "))
	}
	return p, nil
}

// ParserNames lists registered parser names.
func ParserNames() []string {
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type exitCodeParser struct{}

func (exitCodeParser) Name() string { return "exit-code" }

func (exitCodeParser) Parse(file string, run shell.Result) []Result {
	return []Result{fromExitCode(file, run)}
}

func fromExitCode(file string, run shell.Result) Result {
	r := Result{File: file, Status: Pass, Elapsed: run.Duration}
	if run.ExitCode != 0 {
		r.Status = Fail
		r.Message = failureOutput(run)
	}
	return r
}

func failureOutput(run shell.Result) string {
	out := strings.TrimSpace(run.Stderr)
	if out == "" {
		out = strings.TrimSpace(run.Stdout)
	}
	if out == "" {
		return fmt.Sprintf("exited with code %d", run.ExitCode)
	}
	return out
}

// tapParser reads Test Anything Protocol output as produced by node --test
// and tape.
type tapParser struct{}

var (
	tapPoint     = regexp.MustCompile(`^(not ok|ok)\b\s*(\d+)?\s*(?:-\s*)?([^#]*?)\s*(?:#\s*(\w+)\b\s*(.*))?$`)
	tapYAMLStart = regexp.MustCompile(`^  ---\s*$`)
	tapYAMLEnd   = regexp.MustCompile(`^  \.\.\.\s*$`)
	tapLocation  = regexp.MustCompile(`^\s*location:\s*'?([^']*)'?\s*$`)
	tapDuration  = regexp.MustCompile(`^\s*duration_ms:\s*([0-9.]+)`)
)

func (tapParser) Name() string { return "tap" }

func (tapParser) Parse(file string, run shell.Result) []Result {
	results := make([]Result, 0)
	var (
		inYAML  bool
		yaml    []string
		current = -1
	)

	flushYAML := func() {
		if current < 0 {
			return
		}
		r := &results[current]
		detail := make([]string, 0, len(yaml))
		for _, line := range yaml {
			if m := tapLocation.FindStringSubmatch(line); m != nil {
				r.Location = m[1]
				continue
			}
			if m := tapDuration.FindStringSubmatch(line); m != nil {
				var ms float64
				fmt.Sscanf(m[1], "%g", &ms)
				r.Elapsed = time.Duration(ms * float64(time.Millisecond))
				continue
			}
			detail = append(detail, strings.TrimSpace(line))
		}
		if r.Status == Fail {
			r.Message = strings.Join(detail, "\n")
		}
		yaml = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(run.Stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if inYAML {
			if tapYAMLEnd.MatchString(line) {
				inYAML = false
				flushYAML()
			} else {
				yaml = append(yaml, line)
			}
			continue
		}
		if tapYAMLStart.MatchString(line) {
			inYAML = true
			continue
		}

		if strings.HasPrefix(line, "Bail out!") {
			results = append(results, Result{File: file, Name: "bail out", Status: Fail, Message: strings.TrimSpace(strings.TrimPrefix(line, "Bail out!"))})
			current = len(results) - 1
			continue
		}
		// Subtests are indented; only top-level points count.
		m := tapPoint.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		r := Result{File: file, Name: strings.TrimSpace(m[3]), Status: Pass}
		if m[1] == "not ok" {
			r.Status = Fail
		}
		switch strings.ToUpper(m[4]) {
		case "SKIP":
			r.Status = Skip
		case "TODO":
			if r.Status == Fail {
				r.Status = Skip
			}
		}
		results = append(results, r)
		current = len(results) - 1
	}
	return results
}

// jestParser reads the --json report shared by Jest and Vitest.
type jestParser struct {
	name string
}

type jestOutput struct {
	TestResults []jestSuite `json:"testResults"`
}

type jestSuite struct {
	Name             string          `json:"name"`
	Message          string          `json:"message"`
	AssertionResults []jestAssertion `json:"assertionResults"`
}

type jestAssertion struct {
	FullName        string   `json:"fullName"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Duration        *float64 `json:"duration"`
	FailureMessages []string `json:"failureMessages"`
	Location        *struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"location"`
}

func (p jestParser) Name() string { return p.name }

func (jestParser) Parse(file string, run shell.Result) []Result {
	var out jestOutput
	if err := json.Unmarshal([]byte(jsonPayload(run.Stdout)), &out); err != nil {
		return nil
	}

	results := make([]Result, 0)
	for _, suite := range out.TestResults {
		if len(suite.AssertionResults) == 0 && strings.TrimSpace(suite.Message) != "" {
			// Suite failed to load.
			results = append(results, Result{File: file, Status: Fail, Message: strings.TrimSpace(suite.Message)})
			continue
		}
		for _, a := range suite.AssertionResults {
			name := a.FullName
			if name == "" {
				name = a.Title
			}
			r := Result{File: file, Name: name, Status: mapJestStatus(a.Status)}
			if a.Duration != nil {
				r.Elapsed = time.Duration(*a.Duration * float64(time.Millisecond))
			}
			if a.Location != nil {
				r.Location = fmt.Sprintf("%d:%d", a.Location.Line, a.Location.Column)
			}
			if len(a.FailureMessages) > 0 {
				r.Message = strings.Join(a.FailureMessages, "\n")
			}
			results = append(results, r)
		}
	}
	return results
}

func mapJestStatus(status string) Status {
	switch status {
	case "passed":
		return Pass
	case "failed":
		return Fail
	default:
		// pending, skipped, todo, disabled
		return Skip
	}
}

// jsonPayload drops anything a runner printed before its JSON report.
func jsonPayload(stdout string) string {
	start := strings.Index(stdout, "{")
	if start < 0 {
		return stdout
	}
	return stdout[start:]
}
