package deptree

import (
	"path/filepath"
	"strings"

	"github.com/morozRed/kiln/internal/filetree"
)

var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".json"}

// IsLocal reports whether specifier names a file rather than a package.
func IsLocal(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "/")
}

// ResolvesTo is the path a local specifier points at before extension lookup.
func ResolvesTo(fromFile, specifier string) string {
	if filepath.IsAbs(specifier) {
		return filepath.Clean(specifier)
	}
	return filepath.Join(filepath.Dir(fromFile), filepath.FromSlash(specifier))
}

// Resolve finds the file in tree that specifier refers to from fromFile.
// Package specifiers are never resolved.
func Resolve(tree *filetree.Tree, fromFile, specifier string) (string, bool) {
	if !IsLocal(specifier) {
		return "", false
	}
	base := ResolvesTo(fromFile, specifier)

	for _, candidate := range candidates(base) {
		if tree.Has(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func candidates(base string) []string {
	out := []string{base}
	for _, ext := range resolveExtensions {
		out = append(out, base+ext)
	}

	// Compiled-output specifiers ("./x.js") point at TypeScript sources.
	switch filepath.Ext(base) {
	case ".js", ".jsx":
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		out = append(out, stem+".ts", stem+".tsx")
	case ".mjs":
		out = append(out, strings.TrimSuffix(base, ".mjs")+".mts")
	case ".cjs":
		out = append(out, strings.TrimSuffix(base, ".cjs")+".cts")
	}

	for _, ext := range resolveExtensions {
		out = append(out, filepath.Join(base, "index"+ext))
	}
	return out
}
