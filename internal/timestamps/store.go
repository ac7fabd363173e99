// Package timestamps records when a file was last processed successfully for
// a given purpose ("lint", "test", ...) and answers whether it changed since.
//
// Each (purpose, file) pair owns one small file under the store directory, so
// writers for different keys never contend and deleting the directory forces
// a full rebuild.
package timestamps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morozRed/kiln/internal/fileutil"
)

const recordSuffix = ".timestamp"

var purposePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ErrInvalidPurpose is returned for purpose tags that cannot be used as a
// directory name.
var ErrInvalidPurpose = errors.New("invalid purpose")

// Warner receives non-fatal problems from MarkProcessed.
type Warner interface {
	Warnf(format string, args ...any)
}

// Store is the change cache. The zero value is not usable; call New.
type Store struct {
	root string
	dir  string

	// Now stamps records written by Record and MarkProcessed.
	Now func() time.Time
	// Warn receives MarkProcessed failures. Nil discards them to stderr.
	Warn Warner
}

// New returns a store keeping records for files under root in dir.
func New(root, dir string) *Store {
	return &Store{
		root: filepath.Clean(root),
		dir:  filepath.Clean(dir),
		Now:  time.Now,
	}
}

// Dir returns the directory holding the records.
func (s *Store) Dir() string {
	return s.dir
}

// HasChanged reports whether file was modified after its last record for
// purpose. A missing record, a missing file or an unreadable record all
// count as changed.
func (s *Store) HasChanged(file, purpose string) (bool, error) {
	recorded, ok, err := s.LastProcessed(file, purpose)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	modTime, err := ModTime(file)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return modTime.After(recorded), nil
}

// FindNewer returns the files that changed for purpose, keeping input order.
func (s *Store) FindNewer(files []string, purpose string) ([]string, error) {
	changed := make([]string, 0, len(files))
	for _, file := range files {
		ok, err := s.HasChanged(file, purpose)
		if err != nil {
			return nil, err
		}
		if ok {
			changed = append(changed, file)
		}
	}
	return changed, nil
}

// LastProcessed returns the time file was last recorded for purpose. The
// boolean is false when there is no usable record.
func (s *Store) LastProcessed(file, purpose string) (time.Time, bool, error) {
	path, err := s.recordPath(file, purpose)
	if err != nil {
		return time.Time{}, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	recorded, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false, nil
	}
	return recorded, true, nil
}

// Record stamps file as processed for purpose at the current time.
func (s *Store) Record(file, purpose string) error {
	return s.RecordAt(file, purpose, s.now())
}

// RecordAt stamps file as processed for purpose at the given time. Callers
// pass the time processing started so edits made while it ran are not lost.
func (s *Store) RecordAt(file, purpose string, at time.Time) error {
	path, err := s.recordPath(file, purpose)
	if err != nil {
		return err
	}
	data := []byte(at.UTC().Format(time.RFC3339Nano) + "\n")
	if err := fileutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("record %s for %s: %w", file, purpose, err)
	}
	return nil
}

// MarkProcessed records file like Record but never fails; problems are
// reported through Warn.
func (s *Store) MarkProcessed(file, purpose string) {
	if err := s.Record(file, purpose); err != nil {
		s.warnf("could not record %s: %v", file, err)
	}
}

// MarkAllProcessed records every file at the same instant, writing in parallel.
func (s *Store) MarkAllProcessed(files []string, purpose string, at time.Time) {
	var g errgroup.Group
	g.SetLimit(8)
	for _, file := range files {
		g.Go(func() error {
			if err := s.RecordAt(file, purpose, at); err != nil {
				s.warnf("could not record %s: %v", file, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Forget drops the record of file for purpose.
func (s *Store) Forget(file, purpose string) error {
	path, err := s.recordPath(file, purpose)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Purposes lists the purposes that have at least one record directory.
func (s *Store) Purposes() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && purposePattern.MatchString(entry.Name()) {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Clean deletes every record of every purpose.
func (s *Store) Clean() error {
	return os.RemoveAll(s.dir)
}

// ModTime returns the modification time of file.
func ModTime(file string) (time.Time, error) {
	info, err := os.Stat(file)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *Store) recordPath(file, purpose string) (string, error) {
	if !purposePattern.MatchString(purpose) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPurpose, purpose)
	}

	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Outside the root: key by the absolute path under a separate subtree.
		rel = filepath.Join("_abs", strings.TrimPrefix(filepath.ToSlash(abs), "/"))
	}
	return filepath.Join(s.dir, purpose, rel+recordSuffix), nil
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Store) warnf(format string, args ...any) {
	if s.Warn != nil {
		s.Warn.Warnf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
