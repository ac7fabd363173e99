package fileutil

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteIfChangedSkipsIdenticalContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	changed, err := WriteIfChanged(path, []byte("one"))
	if err != nil || !changed {
		t.Fatalf("expected first write to change file, got changed=%v err=%v", changed, err)
	}
	changed, err = WriteIfChanged(path, []byte("one"))
	if err != nil || changed {
		t.Fatalf("expected identical write to be skipped, got changed=%v err=%v", changed, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if string(data) != "one" {
		t.Fatalf("expected content one, got %q", data)
	}
}

func TestDedupeAndSortedKeys(t *testing.T) {
	if got := DedupeStrings([]string{"b", "a", "b"}); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("expected order-preserving dedupe, got %v", got)
	}
	if got := MapKeysSorted(map[string]bool{"z": true, "a": true}); !reflect.DeepEqual(got, []string{"a", "z"}) {
		t.Fatalf("expected sorted keys, got %v", got)
	}
}
