package filetree

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewSortsDedupesAndExcludes(t *testing.T) {
	tree, err := New("/repo", []string{
		"/repo/src/b.ts",
		"/repo/src/a.ts",
		"/repo/src/b.ts",
		"/repo/node_modules/lib/index.js",
	}, []string{"node_modules/**"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := []string{"/repo/src/a.ts", "/repo/src/b.ts"}
	if !reflect.DeepEqual(tree.Files(), want) {
		t.Fatalf("expected files %v, got %v", want, tree.Files())
	}
	if tree.Has("/repo/node_modules/lib/index.js") {
		t.Fatalf("expected excluded file to be absent")
	}
	if !tree.Has("/repo/src/a.ts") {
		t.Fatalf("expected /repo/src/a.ts to be present")
	}
	if tree.Has("/repo/src") {
		t.Fatalf("expected directories not to be members")
	}
}

func TestMatchingFilesIncludeExcludeAndCache(t *testing.T) {
	tree, err := New("/repo", []string{
		"/repo/src/a.ts",
		"/repo/src/_a_test.ts",
		"/repo/src/vendor/v.ts",
		"/repo/build/tool.js",
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := tree.MatchingFiles([]string{"src/**/*.ts", "build/*.js"}, []string{"src/vendor/**"})
	if err != nil {
		t.Fatalf("MatchingFiles failed: %v", err)
	}
	want := []string{"/repo/build/tool.js", "/repo/src/_a_test.ts", "/repo/src/a.ts"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("expected %v, got %v", want, first)
	}

	second, err := tree.MatchingFiles([]string{"src/**/*.ts", "build/*.js"}, []string{"src/vendor/**"})
	if err != nil {
		t.Fatalf("MatchingFiles failed: %v", err)
	}
	if &first[0] != &second[0] {
		t.Fatalf("expected cached result to reuse the same backing array")
	}

	fresh, err := New("/repo", tree.Files(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	recomputed, err := fresh.MatchingFiles([]string{"src/**/*.ts", "build/*.js"}, []string{"src/vendor/**"})
	if err != nil {
		t.Fatalf("MatchingFiles failed: %v", err)
	}
	if !reflect.DeepEqual(first, recomputed) {
		t.Fatalf("expected cached result %v to equal recomputation %v", first, recomputed)
	}
}

func TestMatchingFilesExcludeWinsOverInclude(t *testing.T) {
	tree, err := New("/repo", []string{"/repo/src/a.ts"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := tree.MatchingFiles([]string{"**/*.ts"}, []string{"**/a.ts"})
	if err != nil {
		t.Fatalf("MatchingFiles failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected exclude to take precedence, got %v", got)
	}
}

func TestEqualsIgnoresOrder(t *testing.T) {
	a, _ := New("/repo", []string{"/repo/a", "/repo/b"}, nil)
	b, _ := New("/repo", []string{"/repo/b", "/repo/a", "/repo/a"}, nil)
	c, _ := New("/repo", []string{"/repo/a", "/repo/c"}, nil)

	if !a.Equals(b) {
		t.Fatalf("expected trees with same files to be equal")
	}
	if a.Equals(c) {
		t.Fatalf("expected trees with different files to differ")
	}
}

func TestScanPrunesExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "src", "a.ts"), "export const a = 1;")
	mustWriteFile(t, filepath.Join(root, "node_modules", "lib", "index.js"), "module.exports = {};")
	mustWriteFile(t, filepath.Join(root, "generated", "build", "x.timestamp"), "")

	tree, err := Scan(context.Background(), root, []string{"node_modules/**", "generated/**"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{filepath.Join(root, "src", "a.ts")}
	if !reflect.DeepEqual(tree.Files(), want) {
		t.Fatalf("expected %v, got %v", want, tree.Files())
	}
	if tree.Rel(want[0]) != "src/a.ts" {
		t.Fatalf("expected relative rendering src/a.ts, got %q", tree.Rel(want[0]))
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
