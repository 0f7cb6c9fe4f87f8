package lang

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// Query selects the target of a build. Offset wins over Name; with neither,
// the first function in the file is used.
type Query struct {
	Offset *int
	Name   string
}

// Target is a located function, or the statement around a higher-order call
// when the caller points at one.
type Target struct {
	Node      *sitter.Node
	Name      string
	Statement bool
}

// Locate finds the target of q in the tree rooted at root.
func Locate(l Language, root *sitter.Node, src []byte, q Query) (*Target, bool) {
	if root == nil {
		return nil, false
	}
	switch {
	case q.Offset != nil:
		return locateOffset(l, root, src, *q.Offset)
	case q.Name != "":
		return locateName(l, root, src, q.Name)
	}
	var first *sitter.Node
	walkFunctions(l, root, func(n *sitter.Node) bool {
		first = n
		return false
	})
	if first == nil {
		return nil, false
	}
	return &Target{Node: first, Name: qualifiedName(l, first, src)}, true
}

func contains(n *sitter.Node, offset int) bool {
	return int(n.StartByte()) <= offset && offset < int(n.EndByte())
}

// deepest returns the chain of nodes containing offset, outermost first.
func deepest(root *sitter.Node, offset int) []*sitter.Node {
	var chain []*sitter.Node
	for n := root; n != nil; {
		chain = append(chain, n)
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if contains(c, offset) {
				next = c
				break
			}
		}
		n = next
	}
	return chain
}

func locateOffset(l Language, root *sitter.Node, src []byte, offset int) (*Target, bool) {
	if offset < 0 || offset > len(src) {
		return nil, false
	}
	// A cursor at end of input still belongs to the last line.
	if offset == len(src) && offset > 0 {
		offset--
	}
	chain := deepest(root, offset)

	var fn *sitter.Node
	fnDepth := -1
	for i := len(chain) - 1; i >= 0; i-- {
		if l.isFunction(chain[i]) {
			fn, fnDepth = chain[i], i
			break
		}
	}

	if fn != nil {
		// A callback of a recognized call shows the whole call expanded.
		if call := l.callbackOf(fn, src); call != nil {
			if owner := enclosingTarget(l, call.Parent()); owner != nil {
				if l.isStatement(owner) {
					return &Target{Node: owner, Statement: true}, true
				}
				fn = owner
			}
		}
		return &Target{Node: fn, Name: qualifiedName(l, fn, src)}, true
	}

	for i := len(chain) - 1; i > fnDepth; i-- {
		if l.isStatement(chain[i]) && l.hasHOFCall(chain[i], src) {
			return &Target{Node: chain[i], Statement: true}, true
		}
	}
	return nil, false
}

// enclosingTarget returns the nearest statement or function above n.
func enclosingTarget(l Language, n *sitter.Node) *sitter.Node {
	for p := n; p != nil; p = p.Parent() {
		if l.isStatement(p) || l.isFunction(p) {
			return p
		}
	}
	return nil
}

func locateName(l Language, root *sitter.Node, src []byte, name string) (*Target, bool) {
	var found *sitter.Node
	walkFunctions(l, root, func(n *sitter.Node) bool {
		bound := l.boundName(n, src)
		if bound == "" {
			return true
		}
		if bound == name || qualifiedName(l, n, src) == name {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return &Target{Node: found, Name: qualifiedName(l, found, src)}, true
}

// walkFunctions visits function-like nodes in document order until visit
// returns false.
func walkFunctions(l Language, n *sitter.Node, visit func(*sitter.Node) bool) bool {
	if l.isFunction(n) && !visit(n) {
		return false
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if !walkFunctions(l, n.NamedChild(i), visit) {
			return false
		}
	}
	return true
}

// qualifiedName prefixes a function's bound name with its enclosing classes.
func qualifiedName(l Language, n *sitter.Node, src []byte) string {
	name := l.boundName(n, src)
	if name == "" {
		return ""
	}
	parts := []string{name}
	for p := n.Parent(); p != nil; p = p.Parent() {
		if l.isFunction(p) {
			break
		}
		if l.isClass(p) {
			if cn := l.boundName(p, src); cn != "" {
				parts = append([]string{cn}, parts...)
			}
		}
	}
	return strings.Join(parts, ".")
}

// Lower converts a located target into the statement IR.
func Lower(l Language, t *Target, src []byte) *cfg.Function {
	if !t.Statement {
		fn := l.lowerFunction(t.Node, src)
		if t.Name != "" {
			fn.Name = t.Name
		}
		return fn
	}
	title := firstLine(t.Node.Content(src))
	return &cfg.Function{
		Title: title,
		Span:  span(t.Node),
		Body:  l.lowerStatement(t.Node, src),
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// FunctionInfo describes a named function-like construct in a file.
type FunctionInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Line      int    `json:"line"`
	EndLine   int    `json:"endLine"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

// Functions lists the named function-like constructs under root in document
// order. Anonymous functions are listed only when they are bound to a name.
func Functions(l Language, root *sitter.Node, src []byte) []FunctionInfo {
	var out []FunctionInfo
	if root == nil {
		return out
	}
	walkFunctions(l, root, func(n *sitter.Node) bool {
		name := qualifiedName(l, n, src)
		if name == "" {
			return true
		}
		out = append(out, FunctionInfo{
			Name:      name,
			Kind:      functionKind(l, n),
			Line:      int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			Start:     int(n.StartByte()),
			End:       int(n.EndByte()),
			Anonymous: n.ChildByFieldName("name") == nil,
		})
		return true
	})
	return out
}

func functionKind(l Language, n *sitter.Node) string {
	switch n.Type() {
	case "lambda":
		return "lambda"
	case "arrow_function":
		return "arrow"
	case "method_definition":
		return "method"
	}
	for p := n.Parent(); p != nil; p = p.Parent() {
		if l.isClass(p) {
			return "method"
		}
		if l.isFunction(p) {
			break
		}
	}
	return "function"
}

// Offset converts a 1-based line and column (in bytes) into a byte offset.
func Offset(src []byte, line, col int) (int, error) {
	if line < 1 || col < 1 {
		return 0, fmt.Errorf("invalid position %d:%d", line, col)
	}
	cur := 1
	start := 0
	for i := 0; i < len(src) && cur < line; i++ {
		if src[i] == '\n' {
			cur++
			start = i + 1
		}
	}
	if cur < line {
		return 0, fmt.Errorf("line %d out of range (file has %d lines)", line, cur)
	}
	end := start
	for end < len(src) && src[end] != '\n' {
		end++
	}
	off := start + col - 1
	if off > end {
		return 0, fmt.Errorf("column %d out of range on line %d", col, line)
	}
	return off, nil
}

// HasSyntaxError reports whether n or anything below it failed to parse.
func HasSyntaxError(n *sitter.Node) bool {
	return n != nil && (n.HasError() || n.IsMissing())
}

// SyntaxErrorAt returns the 1-based line and column of the first node below
// n that failed to parse.
func SyntaxErrorAt(n *sitter.Node) (line, col int, ok bool) {
	if !HasSyntaxError(n) {
		return 0, 0, false
	}
	if n.IsMissing() || n.Type() == "ERROR" {
		p := n.StartPoint()
		return int(p.Row) + 1, int(p.Column) + 1, true
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if line, col, ok := SyntaxErrorAt(n.Child(i)); ok {
			return line, col, true
		}
	}
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1, true
}
