package glob

import "testing"

func TestPatternMatch(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		matched bool
	}{
		{pattern: "**/*.js", path: "a.js", matched: true},
		{pattern: "**/*.js", path: "/repo/src/deep/a.js", matched: true},
		{pattern: "**/*.js", path: "/repo/src/a.ts", matched: false},
		{pattern: "src/*.ts", path: "src/a.ts", matched: true},
		{pattern: "src/*.ts", path: "src/nested/a.ts", matched: false},
		{pattern: "src/**/_*_test.ts", path: "src/_a_test.ts", matched: true},
		{pattern: "src/**/_*_test.ts", path: "src/x/y/_a_test.ts", matched: true},
		{pattern: "src/**/_*_test.ts", path: "src/x/a_test.ts", matched: false},
		{pattern: "/repo/node_modules/**", path: "/repo/node_modules", matched: true},
		{pattern: "/repo/node_modules/**", path: "/repo/node_modules/pkg/index.js", matched: true},
		{pattern: "/repo/node_modules/**", path: "/repo/node_modules_extra/a.js", matched: false},
		{pattern: "file?.ts", path: "file1.ts", matched: true},
		{pattern: "file?.ts", path: "file12.ts", matched: false},
		{pattern: "*.{ts,tsx}", path: "view.tsx", matched: true},
		{pattern: "*.{ts,tsx}", path: "view.js", matched: false},
		{pattern: "[ab].js", path: "b.js", matched: true},
		{pattern: "[!ab].js", path: "b.js", matched: false},
		{pattern: "a+b(1).js", path: "a+b(1).js", matched: true},
	}

	for _, tc := range cases {
		p, err := Compile(tc.pattern)
		if err != nil {
			t.Fatalf("compile %q failed: %v", tc.pattern, err)
		}
		if got := p.Match(tc.path); got != tc.matched {
			t.Fatalf("pattern %q path %q: expected matched=%v, got %v", tc.pattern, tc.path, tc.matched, got)
		}
	}
}

func TestCompileRejectsMalformedPatterns(t *testing.T) {
	for _, pattern := range []string{"src/[abc", "src/{a,b"} {
		if _, err := Compile(pattern); err == nil {
			t.Fatalf("expected error for malformed pattern %q", pattern)
		}
	}
}

func TestCompileCachesPatterns(t *testing.T) {
	first := MustCompile("**/*.go")
	second := MustCompile("**/*.go")
	if first != second {
		t.Fatalf("expected cached pattern instance to be reused")
	}
}

func TestAnchor(t *testing.T) {
	if got := Anchor("/repo", "src/**/*.ts"); got != "/repo/src/**/*.ts" {
		t.Fatalf("expected anchored glob, got %q", got)
	}
	if got := Anchor("/repo/", "./a.js"); got != "/repo/a.js" {
		t.Fatalf("expected anchored glob without ./, got %q", got)
	}
	if got := Anchor("/repo", "/other/**"); got != "/other/**" {
		t.Fatalf("expected absolute glob unchanged, got %q", got)
	}
}

func TestSetMatchAny(t *testing.T) {
	set, err := CompileAll([]string{"**/*.ts", "", "**/*.js"})
	if err != nil {
		t.Fatalf("CompileAll failed: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected blank patterns to be skipped, got %d patterns", len(set))
	}
	if !set.MatchAny("src/a.js") {
		t.Fatalf("expected src/a.js to match")
	}
	if set.MatchAny("src/a.css") {
		t.Fatalf("expected src/a.css not to match")
	}
}
