package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/tasks"
)

type fakeBuild struct {
	mu     sync.Mutex
	resets []bool
	errs   []error
	done   chan struct{}
}

func newFakeBuild(errs ...error) *fakeBuild {
	return &fakeBuild{errs: errs, done: make(chan struct{}, 16)}
}

func (f *fakeBuild) build(ctx context.Context, resetTree bool) error {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.done <- struct{}{}
	}()
	f.resets = append(f.resets, resetTree)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeBuild) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.resets...)
}

func (f *fakeBuild) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for build")
	}
}

type harness struct {
	root     string
	w        *watcher
	events   chan fsnotify.Event
	errs     chan error
	notified []string
	mu       sync.Mutex
}

func newHarness(t *testing.T, build BuildFunc) *harness {
	t.Helper()
	root := t.TempDir()
	cfg, err := config.Default(root)
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	cfg.Watch.Debounce = "20ms"
	cfg.Notify = config.NotifyConfig{Success: "ok", LintFailure: "lint", Failure: "fail"}

	var out bytes.Buffer
	w, err := newWatcher(FromConfig(cfg, report.New(&out, &out, false), build))
	if err != nil {
		t.Fatalf("newWatcher failed: %v", err)
	}
	h := &harness{root: root, w: w, events: make(chan fsnotify.Event, 16), errs: make(chan error)}
	w.notify = func(command string) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.notified = append(h.notified, command)
	}
	return h
}

func (h *harness) start(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	go func() { result <- h.w.loop(ctx, h.events, h.errs) }()
	return result
}

func (h *harness) send(rel string, op fsnotify.Op) {
	h.events <- fsnotify.Event{Name: filepath.Join(h.root, filepath.FromSlash(rel)), Op: op}
}

func (h *harness) notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notified...)
}

func TestBurstOfWritesBuildsOnce(t *testing.T) {
	fb := newFakeBuild()
	h := newHarness(t, fb.build)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	fb.wait(t)
	h.send("src/a.ts", fsnotify.Write)
	h.send("src/b.ts", fsnotify.Write)
	h.send("src/a.ts", fsnotify.Write)
	fb.wait(t)
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	calls := fb.calls()
	if len(calls) != 2 || calls[0] || calls[1] {
		t.Fatalf("expected initial build plus one rebuild without reset, got %v", calls)
	}
}

func TestCreateResetsTree(t *testing.T) {
	fb := newFakeBuild()
	h := newHarness(t, fb.build)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	fb.wait(t)
	h.send("src/new.ts", fsnotify.Create)
	fb.wait(t)
	h.send("src/new.ts", fsnotify.Write)
	fb.wait(t)

	calls := fb.calls()
	if len(calls) != 3 || !calls[1] || calls[2] {
		t.Fatalf("expected reset only after create, got %v", calls)
	}
}

func TestExcludedChangesAreIgnored(t *testing.T) {
	fb := newFakeBuild()
	h := newHarness(t, fb.build)
	ctx, cancel := context.WithCancel(context.Background())
	done := h.start(ctx)

	fb.wait(t)
	h.send("node_modules/x/index.js", fsnotify.Write)
	h.send("generated/incremental/timestamps/test/a.timestamp", fsnotify.Create)
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if calls := fb.calls(); len(calls) != 1 {
		t.Fatalf("expected only the initial build, got %v", calls)
	}
}

func TestConfigChangeRestarts(t *testing.T) {
	fb := newFakeBuild()
	h := newHarness(t, fb.build)
	done := h.start(context.Background())

	fb.wait(t)
	h.send("package.json", fsnotify.Write)
	select {
	case err := <-done:
		if !errors.Is(err, ErrRestart) {
			t.Fatalf("expected ErrRestart, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected loop to stop")
	}
}

func TestNotifyFollowsBuildResult(t *testing.T) {
	lint := &tasks.Failure{Task: "lint", Err: tasks.NewLintError("Lint failed")}
	test := &tasks.Failure{Task: "unittest", Err: tasks.NewTaskError("Tests failed")}
	fb := newFakeBuild(nil, lint, test)
	h := newHarness(t, fb.build)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.start(ctx)

	fb.wait(t)
	h.send("a.ts", fsnotify.Write)
	fb.wait(t)
	h.send("a.ts", fsnotify.Write)
	fb.wait(t)

	deadline := time.Now().Add(time.Second)
	for len(h.notifications()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := h.notifications()
	if len(got) != 3 || got[0] != "ok" || got[1] != "lint" || got[2] != "fail" {
		t.Fatalf("unexpected notifications %v", got)
	}
}

func TestNonTaskErrorStopsLoop(t *testing.T) {
	bad := &tasks.GraphError{Kind: tasks.ErrTaskNotFound, Msg: "Task not found: deploy"}
	fb := newFakeBuild(bad)
	h := newHarness(t, fb.build)

	select {
	case err := <-h.start(context.Background()):
		if !errors.Is(err, tasks.ErrTaskNotFound) {
			t.Fatalf("expected ErrTaskNotFound, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected loop to stop")
	}
	if len(h.notifications()) != 0 {
		t.Fatalf("expected no notification, got %v", h.notifications())
	}
}

func TestRunWatchesRealFiles(t *testing.T) {
	fb := newFakeBuild()
	root := t.TempDir()
	cfg, err := config.Default(root)
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	cfg.Watch.Debounce = "20ms"
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, FromConfig(cfg, report.New(&out, &out, false), fb.build)) }()

	fb.wait(t)
	time.Sleep(50 * time.Millisecond)
	mustWriteFile(t, filepath.Join(root, "a.ts"), "export {};\n")
	fb.wait(t)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if calls := fb.calls(); len(calls) < 2 || !calls[1] {
		t.Fatalf("expected a rebuild with tree reset, got %v", calls)
	}
}

func TestNewDirectoriesAreWatchedWithNarrowGlobs(t *testing.T) {
	fb := newFakeBuild()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	cfg, err := config.Default(root)
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	cfg.Watch.Debounce = "20ms"
	cfg.Watch.Globs = []string{"src/**/*.ts"}
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, FromConfig(cfg, report.New(&out, &out, false), fb.build)) }()

	fb.wait(t)
	time.Sleep(50 * time.Millisecond)
	if err := os.Mkdir(filepath.Join(root, "src", "new"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	fb.wait(t)
	mustWriteFile(t, filepath.Join(root, "src", "new", "a.ts"), "export {};\n")
	fb.wait(t)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	if calls := fb.calls(); len(calls) < 3 {
		t.Fatalf("expected rebuilds for the new directory and its file, got %v", calls)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
