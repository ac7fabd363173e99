// Package report prints build progress: one labelled line per step, inline
// progress marks, and buffered footers printed once the step finishes.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Reporter writes human-readable progress to out and warnings to errOut.
type Reporter struct {
	out    io.Writer
	errOut io.Writer
	debug  bool
	tty    bool

	mu sync.Mutex
	// Now is used to measure step durations.
	Now func() time.Time
}

// New returns a reporter. Debug output is printed only when debug is set.
func New(out, errOut io.Writer, debug bool) *Reporter {
	return &Reporter{
		out:    out,
		errOut: errOut,
		debug:  debug,
		tty:    isTerminal(out),
		Now:    time.Now,
	}
}

// Stdio returns a reporter for the process's standard streams.
func Stdio(debug bool) *Reporter {
	return New(os.Stdout, os.Stderr, debug)
}

// Debugging reports whether debug output is enabled.
func (r *Reporter) Debugging() bool {
	return r.debug
}

// Start prints label, runs body, and prints the elapsed time followed by any
// footer the step collected. body's error is returned unchanged.
func (r *Reporter) Start(label string, body func(*Step) error) error {
	return r.run(label, false, body)
}

// QuietStart is Start but prints nothing unless the step emits output.
func (r *Reporter) QuietStart(label string, body func(*Step) error) error {
	return r.run(label, true, body)
}

// Warnf prints a "warning:" line to the error stream.
func (r *Reporter) Warnf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.errOut, "warning: "+format+"\n", args...)
}

// Println prints a line outside any step.
func (r *Reporter) Println(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, text)
}

func (r *Reporter) run(label string, quiet bool, body func(*Step) error) error {
	step := &Step{r: r, label: label, start: r.now(), quiet: quiet}
	if !quiet {
		step.header()
	} else if r.tty {
		step.spin()
	}

	err := body(step)
	step.finish()
	return err
}

func (r *Reporter) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Step is one labelled unit of work.
type Step struct {
	r     *Reporter
	label string
	start time.Time
	quiet bool

	mu       sync.Mutex
	shown    bool
	spinning bool
	spinLen  int
	footer   strings.Builder
}

// Progress appends text to the step's line.
func (s *Step) Progress(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headerLocked()
	s.write(text)
}

// Debug is Progress that is only shown with debug output enabled. Debug
// lines go on their own line.
func (s *Step) Debug(text string) {
	if !s.r.debug {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headerLocked()
	s.write("\n  " + text)
}

// Failure records a failure message, printed after the step.
func (s *Step) Failure(text string) {
	s.Footer(text)
}

// Footer buffers text to print once the step completes.
func (s *Step) Footer(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.footer.WriteString(text)
}

// Elapsed is the time since the step started.
func (s *Step) Elapsed() time.Duration {
	return s.r.now().Sub(s.start)
}

func (s *Step) header() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headerLocked()
}

func (s *Step) headerLocked() {
	if s.shown {
		return
	}
	s.clearSpinner()
	s.shown = true
	s.write(s.label + ": ")
}

func (s *Step) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quiet && !s.shown && s.footer.Len() == 0 {
		s.clearSpinner()
		return
	}
	s.headerLocked()
	s.write(fmt.Sprintf("(%.1fs)\n", s.Elapsed().Seconds()))
	if s.footer.Len() > 0 {
		s.write(s.footer.String())
	}
}

// spin shows the label with a marker on terminals while a quiet step runs.
func (s *Step) spin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := "- " + s.label + "..."
	s.spinning = true
	s.spinLen = len(status)
	s.write("\r" + status)
}

func (s *Step) clearSpinner() {
	if !s.spinning {
		return
	}
	s.spinning = false
	s.write("\r" + strings.Repeat(" ", s.spinLen) + "\r")
}

func (s *Step) write(text string) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	io.WriteString(s.r.out, text)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && (stat.Mode()&os.ModeCharDevice) != 0
}
