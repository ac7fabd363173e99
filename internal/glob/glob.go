// Package glob matches slash-separated paths against shell-style globs.
//
// Supported syntax: `**` spans any number of path segments (including none),
// `*` and `?` stay within one segment, `[abc]` / `[!abc]` are character
// classes and `{a,b}` is alternation.
package glob

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Pattern is a compiled glob.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

var (
	compiledMu sync.RWMutex
	compiled   = make(map[string]*Pattern)
)

// Compile translates a glob into a Pattern. Compiled patterns are cached.
func Compile(pattern string) (*Pattern, error) {
	compiledMu.RLock()
	p, ok := compiled[pattern]
	compiledMu.RUnlock()
	if ok {
		return p, nil
	}

	expr, err := globToRegex(Normalize(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}

	p = &Pattern{raw: pattern, re: re}
	compiledMu.Lock()
	compiled[pattern] = p
	compiledMu.Unlock()
	return p, nil
}

// MustCompile is like Compile but panics on malformed patterns.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source glob.
func (p *Pattern) String() string { return p.raw }

// Match reports whether path matches the whole pattern.
func (p *Pattern) Match(path string) bool {
	return p.re.MatchString(Normalize(path))
}

// Set is an ordered list of compiled patterns.
type Set []*Pattern

// CompileAll compiles every pattern, failing on the first malformed one.
func CompileAll(patterns []string) (Set, error) {
	set := make(Set, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		p, err := Compile(pattern)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// MatchAny reports whether path matches at least one pattern of the set.
func (s Set) MatchAny(path string) bool {
	for _, p := range s {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// Anchor makes a root-relative glob absolute. Absolute globs are returned unchanged.
func Anchor(root, pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(filepath.ToSlash(pattern), "/") || filepath.IsAbs(pattern) {
		return pattern
	}
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	return strings.TrimSuffix(filepath.ToSlash(root), "/") + "/" + pattern
}

// AnchorAll applies Anchor to every pattern.
func AnchorAll(root string, patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if anchored := Anchor(root, pattern); anchored != "" {
			out = append(out, anchored)
		}
	}
	return out
}

// Normalize converts OS separators to slashes and strips a leading "./".
func Normalize(path string) string {
	path = filepath.ToSlash(path)
	return strings.TrimPrefix(path, "./")
}

func globToRegex(pattern string) (string, error) {
	var b strings.Builder
	braceDepth := 0

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]

		switch ch {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				atSegmentStart := i == 0 || pattern[i-1] == '/'
				j := i + 2
				switch {
				case atSegmentStart && j < len(pattern) && pattern[j] == '/':
					// "**/" matches zero or more whole segments
					b.WriteString("(?:[^/]*/)*")
					i = j
				case atSegmentStart && j == len(pattern) && i > 0:
					// trailing "/**" also matches the directory itself
					trimmed := strings.TrimSuffix(b.String(), "/")
					b.Reset()
					b.WriteString(trimmed)
					b.WriteString("(?:/.*)?")
					i = j - 1
				default:
					b.WriteString(".*")
					i = j - 1
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end == -1 {
				return "", fmt.Errorf("unterminated character class")
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		case '{':
			braceDepth++
			b.WriteString("(?:")
		case '}':
			if braceDepth == 0 {
				b.WriteString(`\}`)
				continue
			}
			braceDepth--
			b.WriteString(")")
		case ',':
			if braceDepth > 0 {
				b.WriteString("|")
				continue
			}
			b.WriteByte(',')
		default:
			if strings.ContainsRune(`.+()|^$\`, rune(ch)) {
				b.WriteByte('\\')
			}
			b.WriteByte(ch)
		}
	}

	if braceDepth != 0 {
		return "", fmt.Errorf("unterminated brace group")
	}
	return b.String(), nil
}
