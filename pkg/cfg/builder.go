package cfg

import "fmt"

const (
	entryLabel = "Start"
	exitLabel  = "End"
)

type builder struct {
	ctx *BuildContext
}

// Build turns a lowered function into a finished graph. Every call owns a
// fresh BuildContext.
func Build(fn *Function, opts Options) *FlowGraph {
	ctx := NewBuildContext(opts)
	b := &builder{ctx: ctx}

	label := entryLabel
	if fn.Title != "" {
		label = fn.Title
	}
	entry := ctx.node(label, ShapeStadium, KindEntry, fn.Header)
	exit := ctx.node(exitLabel, ShapeStadium, KindExit, Span{})

	fc := flowContext{returnTo: exit.ID, raiseTo: exit.ID}
	body := b.processBlock(fn.Body, fc)

	g := finalize(entry, exit, body, ctx.Locations())
	g.Title = fn.Title
	g.Truncated = ctx.Truncated()
	if fn.Span.Valid() {
		g.FunctionRange = &Range{Start: fn.Span.Start, End: fn.Span.End}
	}
	return g
}

// processBlock chains the fragments of a statement list. Statements after a
// fully terminal one are unreachable and skipped.
func (b *builder) processBlock(block Block, fc flowContext) *Fragment {
	frag := newFragment()
	var open []ExitPoint
	for _, s := range block {
		if b.ctx.truncated {
			break
		}
		sf := b.processStmt(s, fc)
		if sf.Empty() {
			continue
		}
		frag.absorb(sf)
		if frag.Entry == "" {
			frag.Entry = sf.Entry
		} else {
			frag.connectExits(open, sf.Entry)
		}
		open = sf.Exits
		if len(open) == 0 {
			break
		}
	}
	frag.exitAll(open)
	return frag
}

func (b *builder) processStmt(s Stmt, fc flowContext) *Fragment {
	b.ctx.depth++
	defer func() { b.ctx.depth-- }()
	if b.ctx.exhausted() {
		return b.truncate(s.Pos())
	}

	switch s := s.(type) {
	case *Simple:
		return b.simple(s.Text, s.Kind, s.Span)
	case *If:
		return b.processIf(s, fc)
	case *While:
		return b.processWhile(s, fc)
	case *ForEach:
		return b.processForEach(s, fc)
	case *For:
		return b.processFor(s, fc)
	case *DoWhile:
		return b.processDoWhile(s, fc)
	case *Try:
		return b.processTry(s, fc)
	case *Return:
		return b.jump(s.Text, ShapeRound, KindReturn, s.Span, fc.returnTarget())
	case *Raise:
		return b.jump(s.Text, ShapeRound, KindRaise, s.Span, fc.raiseTarget())
	case *Break:
		if t := fc.breakTarget(s.Label); t != "" {
			return b.jump(s.Text, ShapeRound, KindBreak, s.Span, t)
		}
		return b.simple(s.Text, KindStatement, s.Span)
	case *Continue:
		if t := fc.continueTarget(s.Label); t != "" {
			return b.jump(s.Text, ShapeRound, KindContinue, s.Span, t)
		}
		return b.simple(s.Text, KindStatement, s.Span)
	case *Switch:
		return b.processSwitch(s, fc)
	case *Ternary:
		return b.processTernary(s, fc)
	case *Assert:
		return b.processAssert(s, fc)
	case *With:
		return b.processWith(s, fc)
	case *HOFCall:
		if !b.ctx.opts.ExpandHOF || len(s.Stages) == 0 {
			return b.simple(s.Text, KindHOF, s.Span)
		}
		return b.processHOF(s, fc)
	case *PromiseChain:
		if !b.ctx.opts.ExpandPromises || len(s.Steps) == 0 {
			return b.simple(s.Text, KindAsync, s.Span)
		}
		return b.processPromise(s, fc)
	default:
		panic(fmt.Sprintf("cfg: unhandled statement %T", s))
	}
}

// truncate emits the placeholder once; later calls yield empty fragments.
func (b *builder) truncate(span Span) *Fragment {
	frag := newFragment()
	if b.ctx.truncated {
		return frag
	}
	b.ctx.truncated = true
	n := b.ctx.node(TruncatedLabel, ShapeRound, KindTruncated, span)
	frag.add(n)
	frag.Entry = n.ID
	frag.exit(n.ID, "")
	return frag
}

// cut hangs the truncation placeholder off the given exit points when the
// ceiling has been reached and reports whether it did. Loops that create
// nodes without going through processStmt call it before each node.
func (b *builder) cut(frag *Fragment, from []ExitPoint, span Span) bool {
	if !b.ctx.exhausted() {
		return false
	}
	t := b.truncate(span)
	if t.Empty() {
		frag.exitAll(from)
		return true
	}
	frag.absorb(t)
	if frag.Entry == "" {
		frag.Entry = t.Entry
	} else {
		frag.connectExits(from, t.Entry)
	}
	frag.exitAll(t.Exits)
	return true
}

func (b *builder) simple(text string, kind NodeKind, span Span) *Fragment {
	if kind == "" {
		kind = KindStatement
	}
	frag := newFragment()
	n := b.ctx.node(text, ShapeRect, kind, span)
	frag.add(n)
	frag.Entry = n.ID
	frag.exit(n.ID, "")
	return frag
}

// jump emits a terminal node wired straight to target.
func (b *builder) jump(text string, shape Shape, kind NodeKind, span Span, target string) *Fragment {
	frag := newFragment()
	n := b.ctx.node(text, shape, kind, span)
	frag.add(n)
	frag.Entry = n.ID
	frag.connect(n.ID, target, "")
	frag.terminate(n.ID)
	return frag
}

func (b *builder) processAssert(s *Assert, fc flowContext) *Fragment {
	frag := newFragment()
	n := b.ctx.node(s.Text, ShapeDiamond, KindDecision, s.Span)
	frag.add(n)
	frag.Entry = n.ID
	frag.connect(n.ID, fc.raiseTarget(), LabelFalse)
	frag.exit(n.ID, LabelTrue)
	return frag
}

func (b *builder) processWith(s *With, fc flowContext) *Fragment {
	kind := KindStatement
	if s.Async {
		kind = KindAsync
	}
	frag := newFragment()
	header := b.ctx.node(s.Header, ShapeRect, kind, s.Span)
	frag.add(header)
	frag.Entry = header.ID

	body := b.processBlock(s.Body, fc)
	if body.Empty() {
		frag.exit(header.ID, "")
		return frag
	}
	frag.absorb(body)
	frag.connect(header.ID, body.Entry, "")
	frag.exitAll(body.Exits)
	return frag
}

// attach wires from into body (or exposes from as an exit point when the body
// is empty) and returns the exits that continue after it.
func (f *Fragment) attach(from, label string, body *Fragment) []ExitPoint {
	if body.Empty() {
		return []ExitPoint{{ID: from, Label: label}}
	}
	f.absorb(body)
	f.connect(from, body.Entry, label)
	return body.Exits
}
