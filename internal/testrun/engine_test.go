//go:build unix

package testrun

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morozRed/kiln/internal/shell"
)

func TestRunIsolatedCountsEachFile(t *testing.T) {
	dir := t.TempDir()
	pass := mustWriteScript(t, dir, "pass.sh", "exit 0")
	fail := mustWriteScript(t, dir, "fail.sh", "echo boom >&2; exit 1")

	var notified []string
	set, err := NewEngine().RunIsolated(context.Background(), []string{pass, fail}, Options{
		Config: Config{Command: "sh"},
		Notify: func(fr FileResult) { notified = append(notified, fr.File+fr.RenderCharacter()) },
	})
	if err != nil {
		t.Fatalf("RunIsolated failed: %v", err)
	}

	counts := set.Count()
	if counts != (Counts{Total: 2, Pass: 1, Fail: 1}) {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if !reflect.DeepEqual(notified, []string{pass + ".", fail + "X"}) {
		t.Fatalf("expected sequential notifications, got %v", notified)
	}
	if got := set.AllPassingFiles(); !reflect.DeepEqual(got, []string{pass}) {
		t.Fatalf("expected only %s passing, got %v", pass, got)
	}
	failures := set.AllMatching(Fail, Timeout)
	if len(failures) != 1 || failures[0].Message != "boom" {
		t.Fatalf("expected one failure with stderr message, got %+v", failures)
	}
}

func TestTimeoutBecomesTimeoutResult(t *testing.T) {
	dir := t.TempDir()
	hang := mustWriteScript(t, dir, "hang.sh", "sleep 30")
	quick := mustWriteScript(t, dir, "quick.sh", "exit 0")

	start := time.Now()
	set, err := NewEngine().RunIsolated(context.Background(), []string{hang, quick}, Options{
		Config: Config{Command: "sh {file}", Timeout: 200 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("RunIsolated failed: %v", err)
	}
	if time.Since(start) > 15*time.Second {
		t.Fatalf("expected hung file to be cut off")
	}
	counts := set.Count()
	if counts.Timeout != 1 || counts.Pass != 1 {
		t.Fatalf("expected one timeout and one pass, got %+v", counts)
	}
}

func TestSpawnFailureFailsOnlyThatFile(t *testing.T) {
	engine := &Engine{run: func(ctx context.Context, cmd shell.Command) (shell.Result, error) {
		if strings.Contains(cmd.Args[1], "broken") {
			return shell.Result{ExitCode: -1}, os.ErrPermission
		}
		return shell.Result{}, nil
	}}

	set, err := engine.RunIsolated(context.Background(), []string{"/a/ok.js", "/a/broken.js"}, Options{
		Config: Config{Command: "node"},
	})
	if err != nil {
		t.Fatalf("RunIsolated failed: %v", err)
	}
	counts := set.Count()
	if counts.Pass != 1 || counts.Fail != 1 {
		t.Fatalf("expected one pass and one fail, got %+v", counts)
	}
}

func TestParallelNotifyIsSerialized(t *testing.T) {
	var active, maxActive int
	var mu sync.Mutex
	engine := &Engine{run: func(ctx context.Context, cmd shell.Command) (shell.Result, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return shell.Result{}, nil
	}}

	inNotify := 0
	var files, notified []string
	for i := 0; i < 8; i++ {
		files = append(files, filepath.Join("/t", string(rune('a'+i))+".js"))
	}
	set, err := engine.RunIsolated(context.Background(), files, Options{
		Config: Config{Command: "node", Parallel: 3},
		Notify: func(fr FileResult) {
			inNotify++
			if inNotify != 1 {
				t.Errorf("expected notify not to overlap")
			}
			notified = append(notified, fr.File)
			inNotify--
		},
	})
	if err != nil {
		t.Fatalf("RunIsolated failed: %v", err)
	}
	if maxActive > 3 {
		t.Fatalf("expected at most 3 concurrent files, got %d", maxActive)
	}
	if set.Count().Pass != 8 {
		t.Fatalf("expected 8 passes, got %+v", set.Count())
	}
	sort.Strings(notified)
	if !reflect.DeepEqual(notified, files) {
		t.Fatalf("expected every file notified once, got %v", notified)
	}
}

func TestOutputIsCapturedAndTeed(t *testing.T) {
	dir := t.TempDir()
	noisy := mustWriteScript(t, dir, "noisy.sh", "echo visible")

	var tee bytes.Buffer
	var captured string
	_, err := NewEngine().RunIsolated(context.Background(), []string{noisy}, Options{
		Config: Config{Command: "sh"},
		Output: &tee,
		Notify: func(fr FileResult) { captured = fr.Output },
	})
	if err != nil {
		t.Fatalf("RunIsolated failed: %v", err)
	}
	if captured != "visible\n" || tee.String() != "visible\n" {
		t.Fatalf("expected captured and teed output, got %q and %q", captured, tee.String())
	}
}

func TestCancelledRunStopsLaunching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	engine := &Engine{run: func(context.Context, shell.Command) (shell.Result, error) {
		calls++
		cancel()
		return shell.Result{}, nil
	}}

	_, err := engine.RunIsolated(ctx, []string{"/a.js", "/b.js", "/c.js"}, Options{Config: Config{Command: "node"}})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if calls != 1 {
		t.Fatalf("expected one launch before cancel, got %d", calls)
	}
}

func TestCommandLineQuotesFile(t *testing.T) {
	if got := CommandLine("node --test {file} --x", "/a b/it's.js"); got != `node --test '/a b/it'\''s.js' --x` {
		t.Fatalf("unexpected command line %q", got)
	}
	if got := CommandLine("node", "/a.js"); got != "node '/a.js'" {
		t.Fatalf("unexpected command line %q", got)
	}
}

func TestUnknownParserRejected(t *testing.T) {
	_, err := NewEngine().RunIsolated(context.Background(), nil, Options{Config: Config{Command: "node", Parser: "mocha"}})
	if err == nil || !strings.Contains(err.Error(), "mocha") {
		t.Fatalf("expected unknown parser error, got %v", err)
	}
}

func mustWriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body+"\n"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
