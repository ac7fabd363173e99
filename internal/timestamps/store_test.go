package timestamps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNoRecordMeansChanged(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "src/a.ts", base)
	store := New(root, filepath.Join(root, "generated", "timestamps"))

	changed, err := store.HasChanged(file, "lint")
	if err != nil {
		t.Fatalf("HasChanged failed: %v", err)
	}
	if !changed {
		t.Fatalf("expected file without record to be changed")
	}
}

func TestRecordThenUnchangedUntilModified(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "src/a.ts", base)
	store := New(root, filepath.Join(root, "generated", "timestamps"))
	store.Now = func() time.Time { return base.Add(time.Minute) }

	if err := store.Record(file, "lint"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		changed, err := store.HasChanged(file, "lint")
		if err != nil {
			t.Fatalf("HasChanged failed: %v", err)
		}
		if changed {
			t.Fatalf("expected recorded file to be unchanged on query %d", i+1)
		}
	}

	// Records are per purpose.
	changed, err := store.HasChanged(file, "test")
	if err != nil || !changed {
		t.Fatalf("expected other purpose to be changed, got changed=%v err=%v", changed, err)
	}

	if err := os.Chtimes(file, base.Add(2*time.Minute), base.Add(2*time.Minute)); err != nil {
		t.Fatalf("chtimes failed: %v", err)
	}
	changed, err = store.HasChanged(file, "lint")
	if err != nil || !changed {
		t.Fatalf("expected modified file to be changed, got changed=%v err=%v", changed, err)
	}
}

func TestEqualTimesAreUnchanged(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "a.js", base)
	store := New(root, filepath.Join(root, "ts"))

	if err := store.RecordAt(file, "test", base); err != nil {
		t.Fatalf("RecordAt failed: %v", err)
	}
	changed, err := store.HasChanged(file, "test")
	if err != nil || changed {
		t.Fatalf("expected equal mtime to count as unchanged, got changed=%v err=%v", changed, err)
	}
}

func TestMissingFileIsChanged(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "gone.ts", base)
	store := New(root, filepath.Join(root, "ts"))
	store.Now = func() time.Time { return base.Add(time.Hour) }

	if err := store.Record(file, "lint"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := os.Remove(file); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	changed, err := store.HasChanged(file, "lint")
	if err != nil || !changed {
		t.Fatalf("expected deleted file to be changed, got changed=%v err=%v", changed, err)
	}
}

func TestCorruptRecordIsChanged(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "a.ts", base)
	dir := filepath.Join(root, "ts")
	store := New(root, dir)

	record := filepath.Join(dir, "lint", "a.ts.timestamp")
	if err := os.MkdirAll(filepath.Dir(record), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(record, []byte("not a time"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	changed, err := store.HasChanged(file, "lint")
	if err != nil || !changed {
		t.Fatalf("expected corrupt record to count as changed, got changed=%v err=%v", changed, err)
	}
}

func TestFindNewerKeepsInputOrder(t *testing.T) {
	root := t.TempDir()
	a := mustWriteFile(t, root, "a.ts", base)
	b := mustWriteFile(t, root, "b.ts", base)
	c := mustWriteFile(t, root, "c.ts", base)
	store := New(root, filepath.Join(root, "ts"))

	if err := store.RecordAt(b, "lint", base.Add(time.Second)); err != nil {
		t.Fatalf("RecordAt failed: %v", err)
	}

	got, err := store.FindNewer([]string{c, b, a}, "lint")
	if err != nil {
		t.Fatalf("FindNewer failed: %v", err)
	}
	want := []string{c, a}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestMarkAllProcessedAndClean(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ts")
	files := []string{
		mustWriteFile(t, root, "a.ts", base),
		mustWriteFile(t, root, "nested/b.ts", base),
	}
	store := New(root, dir)
	warner := &recordingWarner{}
	store.Warn = warner

	store.MarkAllProcessed(files, "test", base.Add(time.Second))
	if len(warner.messages) != 0 {
		t.Fatalf("expected no warnings, got %v", warner.messages)
	}
	changed, err := store.FindNewer(files, "test")
	if err != nil {
		t.Fatalf("FindNewer failed: %v", err)
	}
	if len(changed) != 0 {
		t.Fatalf("expected no changed files after marking, got %v", changed)
	}

	purposes, err := store.Purposes()
	if err != nil {
		t.Fatalf("Purposes failed: %v", err)
	}
	if !reflect.DeepEqual(purposes, []string{"test"}) {
		t.Fatalf("expected purposes [test], got %v", purposes)
	}

	if err := store.Clean(); err != nil {
		t.Fatalf("Clean failed: %v", err)
	}
	changed, err = store.FindNewer(files, "test")
	if err != nil {
		t.Fatalf("FindNewer failed: %v", err)
	}
	if len(changed) != len(files) {
		t.Fatalf("expected every file changed after Clean, got %v", changed)
	}
}

func TestMarkProcessedWarnsInsteadOfFailing(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "a.ts", base)
	blocker := filepath.Join(root, "blocked")
	if err := os.WriteFile(blocker, []byte("file, not dir"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	store := New(root, blocker)
	warner := &recordingWarner{}
	store.Warn = warner

	store.MarkProcessed(file, "lint")
	if len(warner.messages) != 1 {
		t.Fatalf("expected one warning, got %v", warner.messages)
	}
}

func TestInvalidPurposeRejected(t *testing.T) {
	root := t.TempDir()
	file := mustWriteFile(t, root, "a.ts", base)
	store := New(root, filepath.Join(root, "ts"))

	_, err := store.HasChanged(file, "../escape")
	if !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
}

func TestFilesOutsideRootGetTheirOwnRecords(t *testing.T) {
	root := t.TempDir()
	outside := mustWriteFile(t, t.TempDir(), "x.ts", base)
	store := New(root, filepath.Join(root, "ts"))

	if err := store.RecordAt(outside, "lint", base.Add(time.Second)); err != nil {
		t.Fatalf("RecordAt failed: %v", err)
	}
	changed, err := store.HasChanged(outside, "lint")
	if err != nil || changed {
		t.Fatalf("expected outside file to be unchanged, got changed=%v err=%v", changed, err)
	}
}

type recordingWarner struct {
	messages []string
}

func (w *recordingWarner) Warnf(format string, args ...any) {
	w.messages = append(w.messages, fmt.Sprintf(format, args...))
}

func mustWriteFile(t *testing.T, root, rel string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("// "+rel+"\n"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", path, err)
	}
	return path
}
