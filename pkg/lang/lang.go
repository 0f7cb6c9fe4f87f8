// Package lang parses Python and TypeScript/JavaScript with tree-sitter,
// locates the function a caller points at and lowers it into the cfg
// statement IR.
package lang

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// Language is a supported source language. The unexported methods are the
// per-grammar hooks used by the locator and the lowering.
type Language interface {
	// Name is the canonical language name ("python", "typescript", ...).
	Name() string
	// Extensions lists the file extensions handled by the language.
	Extensions() []string
	// Grammar returns the tree-sitter language.
	Grammar() *sitter.Language

	isFunction(n *sitter.Node) bool
	isClass(n *sitter.Node) bool
	isStatement(n *sitter.Node) bool
	// boundName returns the name a function-like node is known by, including
	// the variable, field or key an anonymous function is assigned to.
	boundName(n *sitter.Node, src []byte) string
	// callbackOf returns the call a function-like node is passed to when that
	// call is a recognized higher-order or promise call.
	callbackOf(n *sitter.Node, src []byte) *sitter.Node
	// hasHOFCall reports whether a statement contains a recognized call.
	hasHOFCall(n *sitter.Node, src []byte) bool
	lowerFunction(n *sitter.Node, src []byte) *cfg.Function
	lowerStatement(n *sitter.Node, src []byte) cfg.Block
}

var registry = map[string]Language{}

// extensions maps file extensions to language names.
var extensions = map[string]string{}

func register(l Language) {
	registry[l.Name()] = l
	for _, ext := range l.Extensions() {
		extensions[ext] = l.Name()
	}
}

func init() {
	register(pythonLanguage{})
	register(newTypeScript(langTypeScript))
	register(newTypeScript(langTSX))
	register(newTypeScript(langJavaScript))
}

// aliases accepted by Lookup in addition to canonical names.
var aliases = map[string]string{
	"py":              "python",
	"ts":              "typescript",
	"typescriptreact": "tsx",
	"js":              "javascript",
	"jsx":             "javascript",
	"javascriptreact": "javascript",
}

// Lookup returns the language registered under name or one of its aliases.
func Lookup(name string) (Language, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[name]; ok {
		name = a
	}
	l, ok := registry[name]
	return l, ok
}

// ForFile returns the language for a file path based on its extension.
func ForFile(path string) (Language, bool) {
	name, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false
	}
	return Lookup(name)
}

// DetectLanguage returns the language name for a path, or "" when the file is
// not supported.
func DetectLanguage(path string) string {
	if l, ok := ForFile(path); ok {
		return l.Name()
	}
	return ""
}

// Names returns the registered language names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse parses src with the grammar of l. The parser is created per call.
func Parse(ctx context.Context, l Language, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(l.Grammar())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s source: %w", l.Name(), err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parsing %s source: no tree produced", l.Name())
	}
	return tree, nil
}

// text returns the source of n with whitespace runs collapsed.
func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(n.Content(src)), " ")
}

// between returns the source from the start of a to the start of b.
func between(a, b *sitter.Node, src []byte) string {
	if a == nil {
		return ""
	}
	end := a.EndByte()
	if b != nil {
		end = b.StartByte()
	}
	if end < a.StartByte() {
		end = a.StartByte()
	}
	return strings.Join(strings.Fields(string(src[a.StartByte():end])), " ")
}

func span(n *sitter.Node) cfg.Span {
	if n == nil {
		return cfg.Span{}
	}
	return cfg.Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// hasToken reports whether n has an anonymous child token equal to tok.
func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

func firstOfType(n *sitter.Node, types ...string) *sitter.Node {
	for _, c := range namedChildren(n) {
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

func trimStmt(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ";:{"))
}

// unwrapParens strips one pair of parentheses enclosing the whole text.
func unwrapParens(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s
	}
	depth := 0
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 {
			return s
		}
	}
	return strings.TrimSpace(s[1 : len(s)-1])
}
