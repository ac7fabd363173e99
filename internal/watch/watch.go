// Package watch rebuilds whenever files under the repository root change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/morozRed/kiln/internal/config"
	"github.com/morozRed/kiln/internal/glob"
	"github.com/morozRed/kiln/internal/report"
	"github.com/morozRed/kiln/internal/shell"
	"github.com/morozRed/kiln/internal/tasks"
)

// ErrRestart stops the loop when a configuration file changed. The caller
// reloads configuration and watches again.
var ErrRestart = errors.New("configuration changed")

// BuildFunc runs one build. resetTree is true when files were added, removed
// or renamed since the previous build.
type BuildFunc func(ctx context.Context, resetTree bool) error

type Options struct {
	Root         string
	Exclude      []string
	Globs        []string
	RestartGlobs []string
	Debounce     time.Duration
	Notify       config.NotifyConfig
	Reporter     *report.Reporter
	Build        BuildFunc
}

// FromConfig fills Options from a loaded configuration.
func FromConfig(cfg *config.Config, reporter *report.Reporter, build BuildFunc) Options {
	return Options{
		Root:         cfg.Root,
		Exclude:      cfg.Exclude,
		Globs:        cfg.Watch.Globs,
		RestartGlobs: cfg.Watch.RestartGlobs,
		Debounce:     cfg.WatchDebounce(),
		Notify:       cfg.Notify,
		Reporter:     reporter,
		Build:        build,
	}
}

type kind int

const (
	ignored kind = iota
	modified
	treeChanged
	restart
)

type watcher struct {
	opts    Options
	exclude glob.Set
	include glob.Set
	restart glob.Set
	fs      *fsnotify.Watcher

	// notify starts a notification command; replaced in tests.
	notify func(command string)
}

func newWatcher(opts Options) (*watcher, error) {
	exclude, err := glob.CompileAll(opts.Exclude)
	if err != nil {
		return nil, err
	}
	include, err := glob.CompileAll(opts.Globs)
	if err != nil {
		return nil, err
	}
	restartGlobs, err := glob.CompileAll(opts.RestartGlobs)
	if err != nil {
		return nil, err
	}
	w := &watcher{opts: opts, exclude: exclude, include: include, restart: restartGlobs}
	w.notify = w.startNotify
	return w, nil
}

// Run builds once, then rebuilds after each burst of changes until ctx ends,
// a configuration file changes (ErrRestart), or a build fails for a reason
// other than a task failure.
func Run(ctx context.Context, opts Options) error {
	w, err := newWatcher(opts)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer fsw.Close()
	w.fs = fsw
	if err := w.addTree(opts.Root); err != nil {
		return err
	}

	return w.loop(ctx, fsw.Events, fsw.Errors)
}

func (w *watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	if err := w.build(ctx, false); err != nil {
		return err
	}

	var (
		timer     *time.Timer
		fire      <-chan time.Time
		resetTree bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.opts.Reporter.Warnf("file watcher: %v", err)
		case event, ok := <-events:
			if !ok {
				return nil
			}
			switch w.classify(event) {
			case ignored:
				continue
			case restart:
				w.opts.Reporter.Println(fmt.Sprintf("\n%s changed; restarting", w.rel(event.Name)))
				return ErrRestart
			case treeChanged:
				resetTree = true
				if event.Has(fsnotify.Create) {
					w.addDir(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.build(ctx, resetTree); err != nil {
				return err
			}
			resetTree = false
		}
	}
}

// build runs one build and reports back. Task failures keep the loop going.
func (w *watcher) build(ctx context.Context, resetTree bool) error {
	err := w.opts.Build(ctx, resetTree)

	var failure *tasks.Failure
	switch {
	case err == nil:
		w.notify(w.opts.Notify.Success)
	case errors.As(err, &failure):
		if tasks.IsLintFailure(err) {
			w.notify(w.opts.Notify.LintFailure)
		} else {
			w.notify(w.opts.Notify.Failure)
		}
	default:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	w.opts.Reporter.Println("Watching for changes...")
	return nil
}

func (w *watcher) classify(event fsnotify.Event) kind {
	rel := w.rel(event.Name)
	if rel == "" || rel == "." || w.exclude.MatchAny(rel) {
		return ignored
	}
	if w.restart.MatchAny(rel) {
		return restart
	}
	// New directories are watched whatever the globs say; files created
	// inside them may still match.
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		return treeChanged
	}
	if !w.include.MatchAny(rel) {
		return ignored
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return treeChanged
	}
	if event.Has(fsnotify.Write) {
		return modified
	}
	return ignored
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (w *watcher) rel(path string) string {
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil {
		return ""
	}
	return glob.Normalize(rel)
}

// addTree watches root and every non-excluded directory below it.
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			rel := w.rel(path)
			if w.exclude.MatchAny(rel) || w.exclude.MatchAny(rel+"/") {
				return filepath.SkipDir
			}
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *watcher) addDir(path string) {
	if w.fs == nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.opts.Reporter.Warnf("%v", err)
	}
}

func (w *watcher) startNotify(command string) {
	if command == "" {
		return
	}
	cmd := shell.Sh(command)
	cmd.Dir = w.opts.Root
	proc, err := shell.Start(context.Background(), cmd)
	if err != nil {
		w.opts.Reporter.Warnf("notify command failed: %v", err)
		return
	}
	go proc.Wait()
}
