package cfg

const switchEndLabel = "end switch"

// processIf builds an if/elif/else chain. Branches fan out; there is no
// merge node, the branch exits are simply collected.
func (b *builder) processIf(s *If, fc flowContext) *Fragment {
	frag := newFragment()
	prev := ""
	for _, br := range s.Branches {
		var from []ExitPoint
		if prev != "" {
			from = []ExitPoint{{ID: prev, Label: LabelFalse}}
		}
		if b.cut(frag, from, br.Span) {
			return frag
		}
		cond := b.ctx.node(br.Cond, ShapeDiamond, KindDecision, br.Span)
		frag.add(cond)
		if prev == "" {
			frag.Entry = cond.ID
		} else {
			frag.connect(prev, cond.ID, LabelFalse)
		}
		frag.exitAll(frag.attach(cond.ID, LabelTrue, b.processBlock(br.Body, fc)))
		prev = cond.ID
	}
	if prev == "" {
		return frag
	}
	frag.exitAll(frag.attach(prev, LabelFalse, b.processBlock(s.Else, fc)))
	return frag
}

// processSwitch builds switch and match statements. Cases are isolated: a
// case body never falls into the next one, and a case without a body is an
// exit point of its guard.
func (b *builder) processSwitch(s *Switch, fc flowContext) *Fragment {
	frag := newFragment()
	subject := b.ctx.node(s.Subject, ShapeRect, KindStatement, s.Span)
	frag.add(subject)
	frag.Entry = subject.ID

	inner := fc
	endID := ""
	if s.Breakable {
		endID = b.ctx.reserve()
		inner = fc.withLabeledLoop(s.Label, endID, fc.continueTarget(""))
	}

	prev, prevLabel := subject.ID, ""
	var fallback *Case
	cut := false
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.Default {
			fallback = c
			continue
		}
		if cut = b.cut(frag, []ExitPoint{{ID: prev, Label: prevLabel}}, c.Span); cut {
			break
		}
		guard := b.ctx.node(c.Guard, ShapeDiamond, KindDecision, c.Span)
		frag.add(guard)
		frag.connect(prev, guard.ID, prevLabel)
		frag.exitAll(frag.attach(guard.ID, LabelTrue, b.processBlock(c.Body, inner)))
		prev, prevLabel = guard.ID, LabelFalse
	}

	switch {
	case cut:
	case fallback != nil:
		body := b.processBlock(fallback.Body, inner)
		if !body.Empty() {
			frag.absorb(body)
			frag.connect(prev, body.Entry, prevLabel)
			frag.exitAll(body.Exits)
		} else {
			frag.exit(prev, prevLabel)
		}
	default:
		frag.exit(prev, prevLabel)
	}

	if endID != "" && referenced(frag, endID) {
		end := b.ctx.nodeWithID(endID, switchEndLabel, ShapeRound, KindLoopEnd, Span{})
		frag.add(end)
		frag.exit(end.ID, "")
	}
	return frag
}

func referenced(f *Fragment, id string) bool {
	for _, e := range f.Edges {
		if e.To == id {
			return true
		}
	}
	return false
}

// processTernary draws a conditional expression as a decision with one node
// per computed value. Returned values terminate directly.
func (b *builder) processTernary(s *Ternary, fc flowContext) *Fragment {
	frag := newFragment()
	cond := b.ctx.node(s.Cond, ShapeDiamond, KindDecision, s.Span)
	frag.add(cond)
	frag.Entry = cond.ID

	kind, shape := KindStatement, ShapeRect
	switch {
	case s.Return:
		kind, shape = KindReturn, ShapeRound
	case s.Prefix != "":
		kind = KindAssignment
	}
	for _, arm := range []struct{ text, label string }{{s.Then, LabelTrue}, {s.Else, LabelFalse}} {
		n := b.ctx.node(s.Prefix+arm.text, shape, kind, Span{})
		frag.add(n)
		frag.connect(cond.ID, n.ID, arm.label)
		if s.Return {
			frag.connect(n.ID, fc.returnTarget(), "")
			frag.terminate(n.ID)
		} else {
			frag.exit(n.ID, "")
		}
	}
	return frag
}
