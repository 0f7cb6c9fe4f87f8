package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/l3aro/codeflow/pkg/cfg"
)

type pythonLanguage struct{}

func (pythonLanguage) Name() string              { return "python" }
func (pythonLanguage) Extensions() []string      { return []string{".py", ".pyw", ".pyi"} }
func (pythonLanguage) Grammar() *sitter.Language { return python.GetLanguage() }

func (pythonLanguage) isFunction(n *sitter.Node) bool {
	t := n.Type()
	return t == "function_definition" || t == "lambda"
}

func (pythonLanguage) isClass(n *sitter.Node) bool { return n.Type() == "class_definition" }

func (pythonLanguage) isStatement(n *sitter.Node) bool {
	return strings.HasSuffix(n.Type(), "_statement")
}

func (pythonLanguage) boundName(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "function_definition", "class_definition":
		return text(n.ChildByFieldName("name"), src)
	case "lambda":
		if p := n.Parent(); p != nil && p.Type() == "assignment" {
			if left := p.ChildByFieldName("left"); left != nil {
				return text(left, src)
			}
		}
	}
	return ""
}

var pyHOFs = map[string]cfg.HOFOp{
	"map":              cfg.OpMap,
	"filter":           cfg.OpFilter,
	"reduce":           cfg.OpReduce,
	"functools.reduce": cfg.OpReduce,
}

// pyCollectors wrap a lazy map/filter iterator without changing its flow.
var pyCollectors = map[string]bool{"list": true, "tuple": true, "set": true, "sorted": true}

func pyCallArgs(call *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, a := range namedChildren(call.ChildByFieldName("arguments")) {
		if a.Type() == "comment" || a.Type() == "keyword_argument" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func pyHOFOp(call *sitter.Node, src []byte) (cfg.HOFOp, bool) {
	if call == nil || call.Type() != "call" {
		return "", false
	}
	op, ok := pyHOFs[text(call.ChildByFieldName("function"), src)]
	if !ok || len(pyCallArgs(call)) < 2 {
		return "", false
	}
	return op, true
}

// pyHOFChain unrolls nested map/filter/reduce calls, innermost stage first.
func pyHOFChain(expr *sitter.Node, src []byte) (*sitter.Node, []cfg.HOFStage, bool) {
	if expr != nil && expr.Type() == "call" && pyCollectors[text(expr.ChildByFieldName("function"), src)] {
		if args := pyCallArgs(expr); len(args) == 1 {
			if source, stages, ok := pyHOFChain(args[0], src); ok {
				return source, stages, true
			}
		}
	}
	op, ok := pyHOFOp(expr, src)
	if !ok {
		return nil, nil, false
	}
	args := pyCallArgs(expr)
	stage := cfg.HOFStage{Span: span(expr), Op: op, Callback: pyCallback(args[0], src)}
	if op == cfg.OpReduce && len(args) > 2 {
		stage.Initial = text(args[2], src)
	}
	source, stages, ok := pyHOFChain(args[1], src)
	if !ok {
		return args[1], []cfg.HOFStage{stage}, true
	}
	return source, append(stages, stage), true
}

func pyCallback(n *sitter.Node, src []byte) cfg.Callback {
	if n.Type() != "lambda" {
		return cfg.Callback{Span: span(n), Named: text(n, src)}
	}
	return cfg.Callback{
		Span:   span(n),
		Params: text(n.ChildByFieldName("parameters"), src),
		Body:   pyImplicitReturn(n.ChildByFieldName("body"), src),
	}
}

func pyImplicitReturn(expr *sitter.Node, src []byte) cfg.Block {
	if expr == nil {
		return nil
	}
	if expr.Type() == "conditional_expression" {
		t := pyTernary(expr, src)
		t.Return = true
		return cfg.Block{t}
	}
	return cfg.Block{&cfg.Return{Span: span(expr), Text: text(expr, src), Implicit: true}}
}

func (p pythonLanguage) callbackOf(n *sitter.Node, src []byte) *sitter.Node {
	if n.Type() != "lambda" {
		return nil
	}
	args := n.Parent()
	if args == nil || args.Type() != "argument_list" {
		return nil
	}
	if call := args.Parent(); call != nil {
		if _, ok := pyHOFOp(call, src); ok {
			return call
		}
	}
	return nil
}

func (p pythonLanguage) hasHOFCall(n *sitter.Node, src []byte) bool {
	if _, ok := pyHOFOp(n, src); ok {
		return true
	}
	for _, c := range namedChildren(n) {
		if p.hasHOFCall(c, src) {
			return true
		}
	}
	return false
}

func (p pythonLanguage) lowerFunction(n *sitter.Node, src []byte) *cfg.Function {
	body := n.ChildByFieldName("body")
	fn := &cfg.Function{
		Name:   p.boundName(n, src),
		Title:  trimStmt(between(n, body, src)),
		Span:   span(n),
		Header: cfg.Span{Start: int(n.StartByte())},
	}
	if body != nil {
		fn.Header.End = int(body.StartByte())
	}
	if n.Type() == "lambda" {
		if fn.Name != "" {
			fn.Title = fn.Name + " = " + fn.Title
		}
		fn.Body = pyImplicitReturn(body, src)
		return fn
	}
	fn.Body = p.lowerBlock(body, src)
	return fn
}

func (p pythonLanguage) lowerStatement(n *sitter.Node, src []byte) cfg.Block {
	return p.lowerStmt(n, src)
}

func (p pythonLanguage) lowerBlock(n *sitter.Node, src []byte) cfg.Block {
	if n == nil {
		return nil
	}
	if n.Type() != "block" {
		return p.lowerStmt(n, src)
	}
	var out cfg.Block
	for _, c := range namedChildren(n) {
		out = append(out, p.lowerStmt(c, src)...)
	}
	return out
}

func (p pythonLanguage) lowerStmt(n *sitter.Node, src []byte) cfg.Block {
	sp := span(n)
	switch n.Type() {
	case "comment", "pass_statement":
		return nil

	case "expression_statement":
		return p.lowerExpression(n, src)

	case "return_statement":
		expr := n.NamedChild(0)
		if expr != nil && expr.Type() == "conditional_expression" {
			t := pyTernary(expr, src)
			t.Span, t.Prefix, t.Return = sp, "return ", true
			return cfg.Block{t}
		}
		if source, stages, ok := pyHOFChain(expr, src); ok {
			return cfg.Block{hofCall(n, source, stages, "", true, src)}
		}
		return cfg.Block{&cfg.Return{Span: sp, Text: text(n, src)}}

	case "raise_statement":
		return cfg.Block{&cfg.Raise{Span: sp, Text: text(n, src)}}
	case "break_statement":
		return cfg.Block{&cfg.Break{Span: sp, Text: text(n, src)}}
	case "continue_statement":
		return cfg.Block{&cfg.Continue{Span: sp, Text: text(n, src)}}

	case "if_statement":
		return cfg.Block{p.lowerIf(n, src)}

	case "while_statement":
		body := n.ChildByFieldName("body")
		return cfg.Block{&cfg.While{
			Span:   sp,
			Header: "while " + text(n.ChildByFieldName("condition"), src),
			Body:   p.lowerBlock(body, src),
			Else:   p.elseBody(n, src),
		}}

	case "for_statement":
		body := n.ChildByFieldName("body")
		return cfg.Block{&cfg.ForEach{
			Span:   sp,
			Header: trimStmt(between(n, body, src)),
			Body:   p.lowerBlock(body, src),
			Else:   p.elseBody(n, src),
			Async:  hasToken(n, "async"),
		}}

	case "try_statement":
		return cfg.Block{p.lowerTry(n, src)}

	case "with_statement":
		body := n.ChildByFieldName("body")
		return cfg.Block{&cfg.With{
			Span:   sp,
			Header: trimStmt(between(n, body, src)),
			Body:   p.lowerBlock(body, src),
			Async:  hasToken(n, "async"),
		}}

	case "match_statement":
		return cfg.Block{p.lowerMatch(n, src)}

	case "assert_statement":
		return cfg.Block{&cfg.Assert{Span: sp, Text: text(n, src), Cond: text(n.NamedChild(0), src)}}

	case "function_definition", "class_definition":
		return cfg.Block{&cfg.Simple{Span: sp, Text: trimStmt(between(n, n.ChildByFieldName("body"), src)), Kind: cfg.KindStatement}}

	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			return p.lowerStmt(def, src)
		}
	}
	return cfg.Block{&cfg.Simple{Span: sp, Text: text(n, src), Kind: cfg.KindStatement}}
}

func (p pythonLanguage) lowerExpression(n *sitter.Node, src []byte) cfg.Block {
	sp := span(n)
	expr := n.NamedChild(0)
	if expr == nil {
		return nil
	}
	switch expr.Type() {
	case "string", "concatenated_string":
		// Docstrings and bare string literals have no effect on flow.
		return nil
	case "assignment":
		left, right := expr.ChildByFieldName("left"), expr.ChildByFieldName("right")
		if right != nil && right.Type() == "conditional_expression" {
			t := pyTernary(right, src)
			t.Span, t.Prefix = sp, text(left, src)+" = "
			return cfg.Block{t}
		}
		if source, stages, ok := pyHOFChain(right, src); ok {
			return cfg.Block{hofCall(n, source, stages, text(left, src), false, src)}
		}
		kind := cfg.KindAssignment
		if right != nil && right.Type() == "await" {
			kind = cfg.KindAsync
		}
		return cfg.Block{&cfg.Simple{Span: sp, Text: text(n, src), Kind: kind}}
	case "augmented_assignment":
		return cfg.Block{&cfg.Simple{Span: sp, Text: text(n, src), Kind: cfg.KindAssignment}}
	case "conditional_expression":
		t := pyTernary(expr, src)
		t.Span = sp
		return cfg.Block{t}
	case "call":
		if source, stages, ok := pyHOFChain(expr, src); ok {
			return cfg.Block{hofCall(n, source, stages, "", false, src)}
		}
		return cfg.Block{&cfg.Simple{Span: sp, Text: text(n, src), Kind: cfg.KindCall}}
	case "await":
		return cfg.Block{&cfg.Simple{Span: sp, Text: text(n, src), Kind: cfg.KindAsync}}
	}
	return cfg.Block{&cfg.Simple{Span: sp, Text: text(n, src), Kind: cfg.KindStatement}}
}

// pyTernary lowers `a if cond else b`.
func pyTernary(n *sitter.Node, src []byte) *cfg.Ternary {
	parts := namedChildren(n)
	t := &cfg.Ternary{Span: span(n)}
	if len(parts) == 3 {
		t.Then, t.Cond, t.Else = text(parts[0], src), text(parts[1], src), text(parts[2], src)
	} else {
		t.Cond = text(n, src)
	}
	return t
}

func (p pythonLanguage) lowerIf(n *sitter.Node, src []byte) *cfg.If {
	s := &cfg.If{Span: span(n)}
	cons := n.ChildByFieldName("consequence")
	s.Branches = append(s.Branches, cfg.Branch{
		Span: headerSpan(n, cons),
		Cond: text(n.ChildByFieldName("condition"), src),
		Body: p.lowerBlock(cons, src),
	})
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "elif_clause":
			cc := c.ChildByFieldName("consequence")
			s.Branches = append(s.Branches, cfg.Branch{
				Span: headerSpan(c, cc),
				Cond: text(c.ChildByFieldName("condition"), src),
				Body: p.lowerBlock(cc, src),
			})
		case "else_clause":
			s.Else = p.lowerBlock(c.ChildByFieldName("body"), src)
		}
	}
	return s
}

// elseBody returns the else block of a while or for statement.
func (p pythonLanguage) elseBody(n *sitter.Node, src []byte) cfg.Block {
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		return p.lowerBlock(alt.ChildByFieldName("body"), src)
	}
	return nil
}

func (p pythonLanguage) lowerTry(n *sitter.Node, src []byte) *cfg.Try {
	s := &cfg.Try{Span: span(n), Body: p.lowerBlock(n.ChildByFieldName("body"), src)}
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "except_clause", "except_group_clause":
			body := firstOfType(c, "block")
			s.Handlers = append(s.Handlers, cfg.Handler{
				Span:      headerSpan(c, body),
				Header:    trimStmt(between(c, body, src)),
				Exception: pyExceptionType(c, src),
				Body:      p.lowerBlock(body, src),
			})
		case "else_clause":
			s.Else = p.lowerBlock(c.ChildByFieldName("body"), src)
		case "finally_clause":
			body := firstOfType(c, "block")
			s.HasFinally = true
			s.FinallySpan = headerSpan(c, body)
			s.Finally = p.lowerBlock(body, src)
		}
	}
	return s
}

func pyExceptionType(c *sitter.Node, src []byte) string {
	for _, e := range namedChildren(c) {
		switch e.Type() {
		case "block", "comment":
			continue
		case "as_pattern":
			return text(e.NamedChild(0), src)
		}
		return text(e, src)
	}
	return "Exception"
}

func (p pythonLanguage) lowerMatch(n *sitter.Node, src []byte) *cfg.Switch {
	body := n.ChildByFieldName("body")
	s := &cfg.Switch{Span: span(n), Subject: trimStmt(between(n, body, src))}
	var clauses []*sitter.Node
	for _, c := range namedChildren(body) {
		if c.Type() == "case_clause" {
			clauses = append(clauses, c)
		}
	}
	// Some grammar versions attach case clauses directly to the statement.
	if len(clauses) == 0 {
		for _, c := range namedChildren(n) {
			if c.Type() == "case_clause" {
				clauses = append(clauses, c)
			}
		}
	}
	for _, c := range clauses {
		cons := c.ChildByFieldName("consequence")
		if cons == nil {
			cons = firstOfType(c, "block")
		}
		guard := trimStmt(between(c, cons, src))
		s.Cases = append(s.Cases, cfg.Case{
			Span:    headerSpan(c, cons),
			Guard:   guard,
			Default: guard == "case _",
			Body:    p.lowerBlock(cons, src),
		})
	}
	return s
}

// headerSpan covers a compound statement up to the start of its body.
func headerSpan(n, body *sitter.Node) cfg.Span {
	if body == nil {
		return span(n)
	}
	return cfg.Span{Start: int(n.StartByte()), End: int(body.StartByte())}
}

func hofCall(stmt, source *sitter.Node, stages []cfg.HOFStage, target string, ret bool, src []byte) *cfg.HOFCall {
	return &cfg.HOFCall{
		Span:       span(stmt),
		Text:       text(stmt, src),
		Source:     text(source, src),
		SourceSpan: span(source),
		Stages:     stages,
		Target:     target,
		Return:     ret,
	}
}
