// Package filetree holds an immutable in-memory listing of repository files.
//
// A Tree never observes the file system after construction. When files are
// added, removed or renamed, scan again and replace the tree.
package filetree

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/morozRed/kiln/internal/glob"
)

// Tree is a sorted, deduplicated set of absolute file paths.
type Tree struct {
	root  string
	files []string
	index map[string]bool

	mu         sync.Mutex
	matchCache map[string][]string
}

// New builds a tree from files, discarding any that match excludeGlobs.
// Malformed exclude globs are reported as errors.
func New(root string, files []string, excludeGlobs []string) (*Tree, error) {
	exclude, err := glob.CompileAll(glob.AnchorAll(root, excludeGlobs))
	if err != nil {
		return nil, err
	}

	index := make(map[string]bool, len(files))
	kept := make([]string, 0, len(files))
	for _, file := range files {
		file = filepath.Clean(file)
		if index[file] || exclude.MatchAny(file) {
			continue
		}
		index[file] = true
		kept = append(kept, file)
	}
	sort.Strings(kept)

	return &Tree{
		root:       filepath.Clean(root),
		files:      kept,
		index:      index,
		matchCache: make(map[string][]string),
	}, nil
}

// Scan walks rootDir and returns every regular file not matched by excludeGlobs.
// Excluded directories are pruned without being read.
func Scan(ctx context.Context, rootDir string, excludeGlobs []string) (*Tree, error) {
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	exclude, err := glob.CompileAll(glob.AnchorAll(rootDir, excludeGlobs))
	if err != nil {
		return nil, err
	}

	files := make([]string, 0)
	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != rootDir && exclude.MatchAny(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return New(rootDir, files, excludeGlobs)
}

// Root returns the directory the tree was built for.
func (t *Tree) Root() string { return t.root }

// Len returns the number of files.
func (t *Tree) Len() int { return len(t.files) }

// Files returns a copy of the sorted file list.
func (t *Tree) Files() []string {
	out := make([]string, len(t.files))
	copy(out, t.files)
	return out
}

// Has reports whether file is part of the tree. Directories are never members.
func (t *Tree) Has(file string) bool {
	return t.index[filepath.Clean(file)]
}

// MatchingFiles returns files matching any include glob and none of the exclude
// globs. Relative globs are anchored at the tree root. Results are cached per
// (include, exclude) pair; repeated calls return the same slice, which callers
// must not modify.
func (t *Tree) MatchingFiles(include, exclude []string) ([]string, error) {
	key := "INCLUDE:\n" + strings.Join(include, "\n") + "\nEXCLUDE:\n" + strings.Join(exclude, "\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	if cached, ok := t.matchCache[key]; ok {
		return cached, nil
	}

	includeSet, err := glob.CompileAll(glob.AnchorAll(t.root, include))
	if err != nil {
		return nil, err
	}
	excludeSet, err := glob.CompileAll(glob.AnchorAll(t.root, exclude))
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0)
	for _, file := range t.files {
		if includeSet.MatchAny(file) && !excludeSet.MatchAny(file) {
			matched = append(matched, file)
		}
	}
	t.matchCache[key] = matched
	return matched, nil
}

// Equals reports whether both trees hold the same set of files.
func (t *Tree) Equals(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.files) != len(other.files) {
		return false
	}
	for _, file := range t.files {
		if !other.index[file] {
			return false
		}
	}
	return true
}

// Rel renders file relative to the tree root, for display.
func (t *Tree) Rel(file string) string {
	rel, err := filepath.Rel(t.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return filepath.ToSlash(rel)
}
