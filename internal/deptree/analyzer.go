// Package deptree decides which source files need reprocessing by following
// their local imports. A file is changed for a purpose when it was never
// processed for that purpose, or when it or anything it transitively imports
// was modified after it was last processed.
package deptree

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/morozRed/kiln/internal/filetree"
	"github.com/morozRed/kiln/internal/fileutil"
	"github.com/morozRed/kiln/internal/timestamps"
)

// ErrorKind classifies a DependencyError.
type ErrorKind string

const (
	DependencyNotFound ErrorKind = "DEPENDENCY_NOT_FOUND"
	FileUnreadable     ErrorKind = "FILE_UNREADABLE"
)

// DependencyError is a problem found while analyzing one file. Errors are
// collected, never returned from FindChangedFiles.
type DependencyError struct {
	Kind       ErrorKind
	File       string
	Dependency string // the import specifier, for DependencyNotFound
	Line       int
	Source     string
	ResolvesTo string // set for local specifiers
	Err        error  // the read error, for FileUnreadable
}

func (e *DependencyError) Error() string {
	switch e.Kind {
	case DependencyNotFound:
		return fmt.Sprintf("Cannot find module '%s'", e.Dependency)
	case FileUnreadable:
		if e.Err != nil {
			return fmt.Sprintf("Cannot read %s: %v", e.File, e.Err)
		}
		return fmt.Sprintf("Cannot read %s", e.File)
	}
	return string(e.Kind)
}

// Result of FindChangedFiles.
type Result struct {
	Changed []string
	Errors  []*DependencyError
}

// ChangeCache is the part of the timestamp store the analyzer reads.
type ChangeCache interface {
	LastProcessed(file, purpose string) (time.Time, bool, error)
}

type analysis struct {
	modTime time.Time
	deps    []string
	errs    []*DependencyError
}

// Analyzer resolves imports against a file tree. Per-file dependency lists
// are memoized and reused until the file's mtime changes or the tree does.
type Analyzer struct {
	cache   ChangeCache
	scanner *Scanner

	mu       sync.Mutex
	tree     *filetree.Tree
	analyzed map[string]analysis
}

func New(tree *filetree.Tree, cache ChangeCache) *Analyzer {
	return &Analyzer{
		cache:    cache,
		scanner:  NewScanner(),
		tree:     tree,
		analyzed: make(map[string]analysis),
	}
}

// SetTree replaces the file tree. Memoized results are dropped when the set
// of files differs, since imports may now resolve elsewhere.
func (a *Analyzer) SetTree(tree *filetree.Tree) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.tree.Equals(tree) {
		a.analyzed = make(map[string]analysis)
	}
	a.tree = tree
}

// FindChangedFiles returns the candidates that are changed for purpose, in
// candidate order, together with every dependency problem found on the way.
// onEach, when set, is called once per candidate after it was decided.
func (a *Analyzer) FindChangedFiles(ctx context.Context, candidates []string, purpose string, onEach func(file string)) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := newWalk(ctx, a)
	result := &Result{
		Changed: make([]string, 0),
		Errors:  make([]*DependencyError, 0),
	}

	for _, file := range candidates {
		if _, seen := w.index[file]; !seen {
			if err := w.visit(file); err != nil {
				return nil, err
			}
		}

		changed, err := a.isChanged(file, purpose, w.newest[file])
		if err != nil {
			return nil, err
		}
		if changed {
			result.Changed = append(result.Changed, file)
		}
		if onEach != nil {
			onEach(file)
		}
	}

	result.Errors = append(result.Errors, w.errors...)
	return result, nil
}

// Dependencies returns the resolved local imports of file.
func (a *Analyzer) Dependencies(ctx context.Context, file string) ([]string, []*DependencyError, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, err := a.analyze(ctx, file)
	if err != nil {
		return nil, nil, err
	}
	return info.deps, info.errs, nil
}

// Dependents returns the files in universe that import any of targets,
// directly or transitively. Targets themselves are not included unless they
// import another target.
func (a *Analyzer) Dependents(ctx context.Context, universe, targets []string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reverse := make(map[string][]string)
	for _, file := range universe {
		info, err := a.analyze(ctx, file)
		if err != nil {
			return nil, err
		}
		for _, dep := range info.deps {
			reverse[dep] = append(reverse[dep], file)
		}
	}

	impacted := make(map[string]bool)
	queue := append([]string(nil), targets...)
	for len(queue) > 0 {
		file := queue[0]
		queue = queue[1:]
		for _, importer := range reverse[file] {
			if impacted[importer] {
				continue
			}
			impacted[importer] = true
			queue = append(queue, importer)
		}
	}

	return fileutil.MapKeysSorted(impacted), nil
}

func (a *Analyzer) isChanged(file, purpose string, newest stamp) (bool, error) {
	recorded, ok, err := a.cache.LastProcessed(file, purpose)
	if err != nil {
		return false, err
	}
	if !ok || newest.unknown {
		return true, nil
	}
	return newest.modTime.After(recorded), nil
}

// analyze returns the memoized dependency list of file, rescanning when its
// mtime moved. The caller holds a.mu.
func (a *Analyzer) analyze(ctx context.Context, file string) (analysis, error) {
	modTime, err := timestamps.ModTime(file)
	if err != nil {
		delete(a.analyzed, file)
		return analysis{errs: []*DependencyError{{Kind: FileUnreadable, File: file, Err: err}}}, nil
	}
	if cached, ok := a.analyzed[file]; ok && cached.modTime.Equal(modTime) {
		return cached, nil
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return analysis{errs: []*DependencyError{{Kind: FileUnreadable, File: file, Err: err}}}, nil
	}
	imports, err := a.scanner.Scan(ctx, file, content)
	if err != nil {
		return analysis{}, fmt.Errorf("scan %s: %w", file, err)
	}

	info := analysis{modTime: modTime, deps: make([]string, 0, len(imports))}
	seen := make(map[string]bool)
	for _, imp := range imports {
		if !IsLocal(imp.Specifier) {
			continue
		}
		resolved, ok := Resolve(a.tree, file, imp.Specifier)
		if !ok {
			info.errs = append(info.errs, &DependencyError{
				Kind:       DependencyNotFound,
				File:       file,
				Dependency: imp.Specifier,
				Line:       imp.Line,
				Source:     imp.Source,
				ResolvesTo: ResolvesTo(file, imp.Specifier),
			})
			continue
		}
		if !seen[resolved] {
			seen[resolved] = true
			info.deps = append(info.deps, resolved)
		}
	}

	a.analyzed[file] = info
	return info, nil
}
