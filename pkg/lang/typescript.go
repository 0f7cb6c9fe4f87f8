package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/l3aro/codeflow/pkg/cfg"
)

const (
	langTypeScript = "typescript"
	langTSX        = "tsx"
	langJavaScript = "javascript"
)

// typeScriptLanguage covers the TypeScript, TSX and JavaScript grammars,
// which share their statement node types.
type typeScriptLanguage struct {
	name string
	exts []string
}

func newTypeScript(name string) typeScriptLanguage {
	switch name {
	case langTSX:
		return typeScriptLanguage{name: name, exts: []string{".tsx"}}
	case langJavaScript:
		return typeScriptLanguage{name: name, exts: []string{".js", ".jsx", ".mjs", ".cjs"}}
	default:
		return typeScriptLanguage{name: langTypeScript, exts: []string{".ts", ".mts", ".cts"}}
	}
}

func (l typeScriptLanguage) Name() string         { return l.name }
func (l typeScriptLanguage) Extensions() []string { return l.exts }

func (l typeScriptLanguage) Grammar() *sitter.Language {
	switch l.name {
	case langTSX:
		return tsx.GetLanguage()
	case langJavaScript:
		return javascript.GetLanguage()
	default:
		return typescript.GetLanguage()
	}
}

var tsFunctionTypes = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

func (typeScriptLanguage) isFunction(n *sitter.Node) bool { return tsFunctionTypes[n.Type()] }

func (typeScriptLanguage) isClass(n *sitter.Node) bool {
	switch n.Type() {
	case "class_declaration", "class", "abstract_class_declaration":
		return true
	}
	return false
}

func (typeScriptLanguage) isStatement(n *sitter.Node) bool {
	t := n.Type()
	return strings.HasSuffix(t, "_statement") || t == "lexical_declaration" || t == "variable_declaration"
}

func (typeScriptLanguage) boundName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return text(name, src)
	}
	p := n.Parent()
	if p == nil {
		return ""
	}
	switch p.Type() {
	case "variable_declarator":
		return text(p.ChildByFieldName("name"), src)
	case "public_field_definition", "field_definition":
		if name := p.ChildByFieldName("name"); name != nil {
			return text(name, src)
		}
		return text(p.ChildByFieldName("property"), src)
	case "pair":
		return strings.Trim(text(p.ChildByFieldName("key"), src), `"'`)
	case "assignment_expression":
		return text(p.ChildByFieldName("left"), src)
	}
	return ""
}

var tsHOFs = map[string]cfg.HOFOp{
	"map":     cfg.OpMap,
	"filter":  cfg.OpFilter,
	"reduce":  cfg.OpReduce,
	"forEach": cfg.OpForEach,
	"flatMap": cfg.OpFlatMap,
	"some":    cfg.OpSome,
	"every":   cfg.OpEvery,
	"find":    cfg.OpFind,
}

var tsPromiseOps = map[string]cfg.PromiseOp{
	"then":    cfg.OpThen,
	"catch":   cfg.OpCatch,
	"finally": cfg.OpFinally,
}

// memberCall splits obj.method(args) into its parts.
func memberCall(call *sitter.Node, src []byte) (obj *sitter.Node, method *sitter.Node, args []*sitter.Node, ok bool) {
	if call == nil || call.Type() != "call_expression" {
		return nil, nil, nil, false
	}
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return nil, nil, nil, false
	}
	for _, a := range namedChildren(call.ChildByFieldName("arguments")) {
		if a.Type() != "comment" {
			args = append(args, a)
		}
	}
	return fn.ChildByFieldName("object"), fn.ChildByFieldName("property"), args, true
}

func isHOFCall(call *sitter.Node, src []byte) bool {
	_, method, args, ok := memberCall(call, src)
	if !ok {
		return false
	}
	_, hof := tsHOFs[text(method, src)]
	return hof && len(args) > 0
}

func isPromiseCall(call *sitter.Node, src []byte) bool {
	_, method, _, ok := memberCall(call, src)
	if !ok {
		return false
	}
	_, p := tsPromiseOps[text(method, src)]
	return p
}

func stageSpan(method, call *sitter.Node) cfg.Span {
	return cfg.Span{Start: int(method.StartByte()), End: int(call.EndByte())}
}

// tsHOFChain unrolls xs.filter(f).map(g) into stages, innermost first.
func (l typeScriptLanguage) tsHOFChain(expr *sitter.Node, src []byte) (*sitter.Node, []cfg.HOFStage, bool) {
	var stages []cfg.HOFStage
	for isHOFCall(expr, src) {
		obj, method, args, _ := memberCall(expr, src)
		st := cfg.HOFStage{
			Span:     stageSpan(method, expr),
			Op:       tsHOFs[text(method, src)],
			Callback: l.callback(args[0], src),
		}
		if st.Op == cfg.OpReduce && len(args) > 1 {
			st.Initial = text(args[1], src)
		}
		stages = append([]cfg.HOFStage{st}, stages...)
		expr = obj
	}
	return expr, stages, len(stages) > 0
}

// tsPromiseChain unrolls p.then(a).catch(b).finally(c).
func (l typeScriptLanguage) tsPromiseChain(expr *sitter.Node, src []byte) (*sitter.Node, []cfg.PromiseStep, bool) {
	var steps []cfg.PromiseStep
	for isPromiseCall(expr, src) {
		obj, method, args, _ := memberCall(expr, src)
		st := cfg.PromiseStep{Span: stageSpan(method, expr), Op: tsPromiseOps[text(method, src)]}
		if len(args) > 0 {
			cb := l.callback(args[0], src)
			st.OnSettled = &cb
		}
		if st.Op == cfg.OpThen && len(args) > 1 {
			cb := l.callback(args[1], src)
			st.OnRejected = &cb
		}
		steps = append([]cfg.PromiseStep{st}, steps...)
		expr = obj
	}
	return expr, steps, len(steps) > 0
}

func (l typeScriptLanguage) callback(n *sitter.Node, src []byte) cfg.Callback {
	switch n.Type() {
	case "arrow_function", "function_expression", "function":
		params := n.ChildByFieldName("parameters")
		if params == nil {
			params = n.ChildByFieldName("parameter")
		}
		return cfg.Callback{Span: span(n), Params: text(params, src), Body: l.functionBody(n, src)}
	}
	return cfg.Callback{Span: span(n), Named: text(n, src)}
}

func (l typeScriptLanguage) callbackOf(n *sitter.Node, src []byte) *sitter.Node {
	switch n.Type() {
	case "arrow_function", "function_expression", "function":
	default:
		return nil
	}
	args := n.Parent()
	if args == nil || args.Type() != "arguments" {
		return nil
	}
	call := args.Parent()
	if isHOFCall(call, src) || isPromiseCall(call, src) {
		return call
	}
	return nil
}

func (l typeScriptLanguage) hasHOFCall(n *sitter.Node, src []byte) bool {
	if isHOFCall(n, src) || isPromiseCall(n, src) {
		return true
	}
	for _, c := range namedChildren(n) {
		if l.hasHOFCall(c, src) {
			return true
		}
	}
	return false
}

func (l typeScriptLanguage) lowerFunction(n *sitter.Node, src []byte) *cfg.Function {
	body := n.ChildByFieldName("body")
	fn := &cfg.Function{
		Name:   l.boundName(n, src),
		Title:  trimStmt(between(n, body, src)),
		Span:   span(n),
		Header: cfg.Span{Start: int(n.StartByte())},
	}
	if body != nil {
		fn.Header.End = int(body.StartByte())
	}
	if n.ChildByFieldName("name") == nil && fn.Name != "" {
		fn.Title = fn.Name + " = " + fn.Title
	}
	fn.Body = l.functionBody(n, src)
	return fn
}

// functionBody lowers a statement block, or an expression body as an
// implicit return.
func (l typeScriptLanguage) functionBody(n *sitter.Node, src []byte) cfg.Block {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	if body.Type() == "statement_block" {
		return l.lowerBlock(body, src)
	}
	expr := body
	for expr.Type() == "parenthesized_expression" && expr.NamedChildCount() == 1 {
		expr = expr.NamedChild(0)
	}
	if expr.Type() == "ternary_expression" {
		t := tsTernary(expr, src)
		t.Return = true
		return cfg.Block{t}
	}
	if source, stages, ok := l.tsHOFChain(expr, src); ok {
		return cfg.Block{hofCall(body, source, stages, "", true, src)}
	}
	return cfg.Block{&cfg.Return{Span: span(body), Text: text(body, src), Implicit: true}}
}

func (l typeScriptLanguage) lowerStatement(n *sitter.Node, src []byte) cfg.Block {
	return l.lowerStmt(n, src)
}

func (l typeScriptLanguage) lowerBlock(n *sitter.Node, src []byte) cfg.Block {
	if n == nil {
		return nil
	}
	if n.Type() != "statement_block" {
		return l.lowerStmt(n, src)
	}
	var out cfg.Block
	for _, c := range namedChildren(n) {
		out = append(out, l.lowerStmt(c, src)...)
	}
	return out
}

func (l typeScriptLanguage) lowerStmt(n *sitter.Node, src []byte) cfg.Block {
	sp := span(n)
	switch n.Type() {
	case "comment", "empty_statement":
		return nil
	case "statement_block":
		return l.lowerBlock(n, src)

	case "expression_statement":
		return l.lowerExpression(n, src)

	case "lexical_declaration", "variable_declaration":
		return l.lowerDeclaration(n, src)

	case "return_statement":
		expr := n.NamedChild(0)
		if expr != nil && expr.Type() == "ternary_expression" {
			t := tsTernary(expr, src)
			t.Span, t.Prefix, t.Return = sp, "return ", true
			return cfg.Block{t}
		}
		if s := l.valueFlow(n, expr, "", true, src); s != nil {
			return cfg.Block{s}
		}
		return cfg.Block{&cfg.Return{Span: sp, Text: trimStmt(text(n, src))}}

	case "throw_statement":
		return cfg.Block{&cfg.Raise{Span: sp, Text: trimStmt(text(n, src))}}
	case "break_statement":
		return cfg.Block{&cfg.Break{Span: sp, Text: trimStmt(text(n, src)), Label: jumpLabel(n, src)}}
	case "continue_statement":
		return cfg.Block{&cfg.Continue{Span: sp, Text: trimStmt(text(n, src)), Label: jumpLabel(n, src)}}

	case "if_statement":
		return cfg.Block{l.lowerIf(n, src)}

	case "while_statement":
		return cfg.Block{&cfg.While{
			Span:   sp,
			Header: "while " + text(n.ChildByFieldName("condition"), src),
			Body:   l.lowerBlock(n.ChildByFieldName("body"), src),
		}}

	case "do_statement":
		cond := n.ChildByFieldName("condition")
		return cfg.Block{&cfg.DoWhile{
			Span:     sp,
			Cond:     "while " + text(cond, src),
			CondSpan: span(cond),
			Body:     l.lowerBlock(n.ChildByFieldName("body"), src),
		}}

	case "for_statement":
		return cfg.Block{&cfg.For{
			Span:   sp,
			Init:   clause(n.ChildByFieldName("initializer"), src),
			Cond:   clause(n.ChildByFieldName("condition"), src),
			Update: clause(n.ChildByFieldName("increment"), src),
			Body:   l.lowerBlock(n.ChildByFieldName("body"), src),
		}}

	case "for_in_statement":
		body := n.ChildByFieldName("body")
		return cfg.Block{&cfg.ForEach{
			Span:   sp,
			Header: trimStmt(between(n, body, src)),
			Body:   l.lowerBlock(body, src),
			Async:  hasToken(n, "await"),
		}}

	case "try_statement":
		return cfg.Block{l.lowerTry(n, src)}

	case "switch_statement":
		return cfg.Block{l.lowerSwitch(n, src)}

	case "labeled_statement":
		body := n.ChildByFieldName("body")
		if body == nil {
			return nil
		}
		out := l.lowerStmt(body, src)
		if len(out) == 1 {
			setLabel(out[0], text(n.ChildByFieldName("label"), src))
		}
		return out

	case "function_declaration", "generator_function_declaration", "class_declaration",
		"abstract_class_declaration", "interface_declaration", "enum_declaration":
		return cfg.Block{&cfg.Simple{Span: sp, Text: trimStmt(between(n, n.ChildByFieldName("body"), src)), Kind: cfg.KindStatement}}
	}
	return cfg.Block{&cfg.Simple{Span: sp, Text: trimStmt(text(n, src)), Kind: cfg.KindStatement}}
}

func (l typeScriptLanguage) lowerExpression(n *sitter.Node, src []byte) cfg.Block {
	sp := span(n)
	expr := n.NamedChild(0)
	if expr == nil {
		return nil
	}
	label := trimStmt(text(n, src))
	switch expr.Type() {
	case "assignment_expression":
		left, right := expr.ChildByFieldName("left"), expr.ChildByFieldName("right")
		if right != nil && right.Type() == "ternary_expression" {
			t := tsTernary(right, src)
			t.Span, t.Prefix = sp, text(left, src)+" = "
			return cfg.Block{t}
		}
		if s := l.valueFlow(n, right, text(left, src), false, src); s != nil {
			return cfg.Block{s}
		}
		return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: valueKind(right, cfg.KindAssignment)}}
	case "augmented_assignment_expression", "update_expression":
		return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: cfg.KindAssignment}}
	case "ternary_expression":
		t := tsTernary(expr, src)
		t.Span = sp
		return cfg.Block{t}
	case "call_expression", "await_expression":
		if s := l.valueFlow(n, expr, "", false, src); s != nil {
			return cfg.Block{s}
		}
		return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: valueKind(expr, cfg.KindCall)}}
	case "new_expression":
		return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: cfg.KindCall}}
	case "string", "template_string":
		// "use strict" and friends.
		return nil
	}
	return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: cfg.KindStatement}}
}

func (l typeScriptLanguage) lowerDeclaration(n *sitter.Node, src []byte) cfg.Block {
	sp := span(n)
	label := trimStmt(text(n, src))
	decls := make([]*sitter.Node, 0, 1)
	for _, c := range namedChildren(n) {
		if c.Type() == "variable_declarator" {
			decls = append(decls, c)
		}
	}
	if len(decls) != 1 {
		return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: cfg.KindAssignment}}
	}
	value := decls[0].ChildByFieldName("value")
	if value == nil {
		return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: cfg.KindAssignment}}
	}
	if value.Type() == "ternary_expression" {
		t := tsTernary(value, src)
		t.Span, t.Prefix = sp, between(n, value, src)+" "
		return cfg.Block{t}
	}
	if s := l.valueFlow(n, value, text(decls[0].ChildByFieldName("name"), src), false, src); s != nil {
		return cfg.Block{s}
	}
	return cfg.Block{&cfg.Simple{Span: sp, Text: label, Kind: valueKind(value, cfg.KindAssignment)}}
}

// valueFlow recognizes a higher-order or promise chain in an expression that
// is evaluated, assigned to target or returned.
func (l typeScriptLanguage) valueFlow(stmt, expr *sitter.Node, target string, ret bool, src []byte) cfg.Stmt {
	if expr == nil {
		return nil
	}
	await := false
	if expr.Type() == "await_expression" {
		await = true
		expr = expr.NamedChild(0)
	}
	if source, steps, ok := l.tsPromiseChain(expr, src); ok {
		return &cfg.PromiseChain{
			Span:       span(stmt),
			Text:       trimStmt(text(stmt, src)),
			Source:     text(source, src),
			SourceSpan: span(source),
			Steps:      steps,
			Target:     target,
			Await:      await,
			Return:     ret,
		}
	}
	if await {
		return nil
	}
	if source, stages, ok := l.tsHOFChain(expr, src); ok {
		h := hofCall(stmt, source, stages, target, ret, src)
		h.Text = trimStmt(h.Text)
		return h
	}
	return nil
}

func valueKind(expr *sitter.Node, fallback cfg.NodeKind) cfg.NodeKind {
	if expr != nil && expr.Type() == "await_expression" {
		return cfg.KindAsync
	}
	return fallback
}

func tsTernary(n *sitter.Node, src []byte) *cfg.Ternary {
	return &cfg.Ternary{
		Span: span(n),
		Cond: unwrapParens(text(n.ChildByFieldName("condition"), src)),
		Then: text(n.ChildByFieldName("consequence"), src),
		Else: text(n.ChildByFieldName("alternative"), src),
	}
}

func clause(n *sitter.Node, src []byte) cfg.Clause {
	if n == nil {
		return cfg.Clause{}
	}
	return cfg.Clause{Span: span(n), Text: trimStmt(text(n, src))}
}

func (l typeScriptLanguage) lowerIf(n *sitter.Node, src []byte) *cfg.If {
	s := &cfg.If{Span: span(n)}
	for cur := n; cur != nil; {
		cons := cur.ChildByFieldName("consequence")
		s.Branches = append(s.Branches, cfg.Branch{
			Span: headerSpan(cur, cons),
			Cond: unwrapParens(text(cur.ChildByFieldName("condition"), src)),
			Body: l.lowerBlock(cons, src),
		})
		alt := cur.ChildByFieldName("alternative")
		if alt == nil {
			break
		}
		next := alt
		if alt.Type() == "else_clause" {
			next = alt.NamedChild(0)
		}
		if next != nil && next.Type() == "if_statement" {
			cur = next
			continue
		}
		s.Else = l.lowerBlock(next, src)
		break
	}
	return s
}

func (l typeScriptLanguage) lowerTry(n *sitter.Node, src []byte) *cfg.Try {
	s := &cfg.Try{Span: span(n), Body: l.lowerBlock(n.ChildByFieldName("body"), src)}
	if h := n.ChildByFieldName("handler"); h != nil {
		body := h.ChildByFieldName("body")
		exc := "error"
		if typ := h.ChildByFieldName("type"); typ != nil {
			exc = strings.TrimSpace(strings.TrimPrefix(text(typ, src), ":"))
		}
		s.Handlers = append(s.Handlers, cfg.Handler{
			Span:      headerSpan(h, body),
			Header:    trimStmt(between(h, body, src)),
			Exception: exc,
			Body:      l.lowerBlock(body, src),
		})
	}
	if f := n.ChildByFieldName("finalizer"); f != nil {
		body := f.ChildByFieldName("body")
		s.HasFinally = true
		s.FinallySpan = headerSpan(f, body)
		s.Finally = l.lowerBlock(body, src)
	}
	return s
}

func (l typeScriptLanguage) lowerSwitch(n *sitter.Node, src []byte) *cfg.Switch {
	value := n.ChildByFieldName("value")
	s := &cfg.Switch{
		Span:      span(n),
		Subject:   "switch " + text(value, src),
		Breakable: true,
	}
	for _, c := range namedChildren(n.ChildByFieldName("body")) {
		var cs cfg.Case
		var guard *sitter.Node
		switch c.Type() {
		case "switch_case":
			guard = c.ChildByFieldName("value")
			cs.Guard = "case " + text(guard, src)
		case "switch_default":
			cs.Guard = "default"
			cs.Default = true
		default:
			continue
		}
		cs.Span = span(c)
		for _, st := range namedChildren(c) {
			if guard != nil && st.StartByte() == guard.StartByte() && st.EndByte() == guard.EndByte() {
				continue
			}
			cs.Body = append(cs.Body, l.lowerStmt(st, src)...)
		}
		s.Cases = append(s.Cases, cs)
	}
	return s
}

// jumpLabel returns the label of break/continue, or "" for a bare jump.
func jumpLabel(n *sitter.Node, src []byte) string {
	if lbl := n.ChildByFieldName("label"); lbl != nil {
		return text(lbl, src)
	}
	if lbl := firstOfType(n, "statement_identifier"); lbl != nil {
		return text(lbl, src)
	}
	return ""
}

// setLabel names a loop or switch so that labeled jumps can reach it.
func setLabel(s cfg.Stmt, label string) {
	switch s := s.(type) {
	case *cfg.While:
		s.Label = label
	case *cfg.ForEach:
		s.Label = label
	case *cfg.For:
		s.Label = label
	case *cfg.DoWhile:
		s.Label = label
	case *cfg.Switch:
		s.Label = label
	}
}
