package testrun

import (
	"fmt"
	"strings"
	"time"
)

// RenderCharacter is the one-character progress mark for a status.
func RenderCharacter(s Status) string {
	switch s {
	case Pass:
		return "."
	case Fail:
		return "X"
	case Timeout:
		return "T"
	case Skip:
		return "_"
	}
	return "?"
}

// RenderCharacter marks the file by its most severe result.
func (f FileResult) RenderCharacter() string {
	return RenderCharacter(f.Status())
}

// RenderSingleLine renders r as "<status> file » name".
func (r Result) RenderSingleLine(display func(string) string) string {
	label := strings.ToUpper(string(r.Status))
	if r.Name == "" {
		return fmt.Sprintf("%s %s", label, displayName(display, r.File))
	}
	return fmt.Sprintf("%s %s » %s", label, displayName(display, r.File), r.Name)
}

// RenderMultiLine renders a failure with its location and message.
func (r Result) RenderMultiLine(display func(string) string) string {
	var b strings.Builder
	b.WriteString(r.RenderSingleLine(display))
	if r.Location != "" {
		b.WriteString("\n  at ")
		b.WriteString(r.Location)
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(msg, "\n") {
			b.WriteString("\n  ")
			b.WriteString(line)
		}
	}
	return b.String()
}

// RenderSummary renders counts as "(1 failed; 2 passed; 3.1ms avg.)". Zero
// counts are omitted.
func RenderSummary(c Counts, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString("(")
	writeCount(&b, c.Fail, "failed")
	writeCount(&b, c.Timeout, "timed out")
	writeCount(&b, c.Skip, "skipped")
	writeCount(&b, c.Pass, "passed")
	if c.Ran() == 0 {
		b.WriteString("none ran")
	} else {
		ms := float64(elapsed) / float64(time.Millisecond) / float64(c.Ran())
		fmt.Fprintf(&b, "%.1fms avg.", ms)
	}
	b.WriteString(")")
	return b.String()
}

func writeCount(b *strings.Builder, n int, label string) {
	if n == 0 {
		return
	}
	fmt.Fprintf(b, "%d %s; ", n, label)
}

func displayName(display func(string) string, file string) string {
	if display == nil {
		return file
	}
	return display(file)
}
