package cli

import (
	"strings"
	"testing"
)

func TestBuildKilnHookBlockRunsQuick(t *testing.T) {
	block := BuildKilnHookBlock("web")

	for _, expected := range []string{
		HookStart,
		"project_dir=\"$(git rev-parse --show-toplevel)/web\"",
		"command -v kiln",
		"kiln quick) || exit 1",
		HookEnd,
	} {
		if !strings.Contains(block, expected) {
			t.Fatalf("expected hook block to contain %q, got:\n%s", expected, block)
		}
	}
}

func TestUpsertKilnHookCreatesScript(t *testing.T) {
	hook := UpsertKilnHook("", ".")
	if !strings.HasPrefix(hook, "#!/bin/sh\n") {
		t.Fatalf("expected shebang, got:\n%s", hook)
	}
	if !strings.Contains(hook, "/\"\n") {
		t.Fatalf("expected project dir at repository root, got:\n%s", hook)
	}
}

func TestUpsertKilnHookReplacesExistingBlock(t *testing.T) {
	existing := "#!/bin/sh\n\necho before\n" + HookStart + "\nold block\n" + HookEnd + "\n\necho after\n"
	updated := UpsertKilnHook(existing, "web")

	if strings.Contains(updated, "old block") {
		t.Fatalf("expected old hook block to be replaced, got:\n%s", updated)
	}
	if strings.Count(updated, HookStart) != 1 || strings.Count(updated, HookEnd) != 1 {
		t.Fatalf("expected exactly one hook block after update, got:\n%s", updated)
	}
	if !strings.Contains(updated, "echo before") || !strings.Contains(updated, "echo after") {
		t.Fatalf("expected non-kiln hook content to be preserved, got:\n%s", updated)
	}
}

func TestUpsertKilnHookAppendsToForeignHook(t *testing.T) {
	updated := UpsertKilnHook("npm test", "")
	if !strings.HasPrefix(updated, "#!/bin/sh\nnpm test\n\n"+HookStart) {
		t.Fatalf("expected shebang, original content, then block, got:\n%s", updated)
	}
}
