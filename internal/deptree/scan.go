package deptree

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Import is one string-literal module reference found in a source file.
type Import struct {
	Specifier string
	Line      int    // 1-based
	Source    string // the trimmed source line
}

// Scanner extracts imports from JavaScript and TypeScript sources.
// Tree-sitter parsers are not safe for concurrent use, so each one is
// guarded by the scanner's lock.
type Scanner struct {
	mu  sync.Mutex
	js  *sitter.Parser
	ts  *sitter.Parser
	tsx *sitter.Parser
}

func NewScanner() *Scanner {
	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())

	ts := sitter.NewParser()
	ts.SetLanguage(typescript.GetLanguage())

	x := sitter.NewParser()
	x.SetLanguage(tsx.GetLanguage())

	return &Scanner{js: js, ts: ts, tsx: x}
}

// Supports reports whether filename has a scannable extension.
func Supports(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".js", ".jsx", ".mjs", ".cjs", ".ts", ".mts", ".cts", ".tsx":
		return true
	}
	return false
}

// Scan returns the imports of content in source order. Files with an
// unsupported extension have no imports.
func (s *Scanner) Scan(ctx context.Context, filename string, content []byte) ([]Import, error) {
	if !Supports(filename) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.parserFor(filename).ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	lines := strings.Split(string(content), "\n")
	imports := make([]Import, 0)
	collectImports(tree.RootNode(), content, lines, &imports)
	return imports, nil
}

func (s *Scanner) parserFor(filename string) *sitter.Parser {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ts", ".mts", ".cts":
		return s.ts
	case ".tsx":
		return s.tsx
	default:
		// JSX parses with the JavaScript grammar.
		return s.js
	}
}

func collectImports(node *sitter.Node, content []byte, lines []string, out *[]Import) {
	switch node.Type() {
	case "import_statement", "export_statement":
		if source := node.ChildByFieldName("source"); source != nil {
			addImport(source, content, lines, out)
		}
	case "call_expression":
		if arg := requireArgument(node, content); arg != nil {
			addImport(arg, content, lines, out)
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectImports(node.NamedChild(i), content, lines, out)
	}
}

// requireArgument returns the string argument of require("x") or import("x").
func requireArgument(call *sitter.Node, content []byte) *sitter.Node {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return nil
	}
	isRequire := fn.Type() == "identifier" && fn.Content(content) == "require"
	if !isRequire && fn.Type() != "import" {
		return nil
	}

	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		return nil
	}
	return first
}

func addImport(str *sitter.Node, content []byte, lines []string, out *[]Import) {
	if str.Type() != "string" {
		return
	}
	literal := str.Content(content)
	if len(literal) < 2 {
		return
	}

	row := int(str.StartPoint().Row)
	source := ""
	if row < len(lines) {
		source = strings.TrimSpace(lines[row])
	}
	*out = append(*out, Import{
		Specifier: literal[1 : len(literal)-1],
		Line:      row + 1,
		Source:    source,
	})
}
