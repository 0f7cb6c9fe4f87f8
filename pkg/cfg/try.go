package cfg

const (
	tryLabel     = "try"
	finallyLabel = "finally"
)

// processTry builds try/except/else/finally. The finally block is built first
// so that returns and raises in the protected region can be redirected to it.
func (b *builder) processTry(s *Try, fc flowContext) *Fragment {
	frag := newFragment()
	try := b.ctx.node(tryLabel, ShapeRect, KindException, s.Span)
	frag.add(try)
	frag.Entry = try.ID

	inner := fc
	var fin Node
	var finExits []ExitPoint
	finIDs := make(map[string]bool)
	if s.HasFinally {
		fin = b.ctx.node(finallyLabel, ShapeRect, KindException, s.FinallySpan)
		before := len(frag.Nodes)
		frag.add(fin)
		finExits = frag.attach(fin.ID, "", b.processBlock(s.Finally, fc))
		for _, n := range frag.Nodes[before:] {
			finIDs[n.ID] = true
		}
		inner = fc.withFinally(fin.ID)
	}

	normal := frag.attach(try.ID, "", b.processBlock(s.Body, inner))
	if ef := b.processBlock(s.Else, inner); !ef.Empty() {
		frag.absorb(ef)
		frag.connectExits(normal, ef.Entry)
		normal = ef.Exits
	}

	for _, h := range s.Handlers {
		if b.ctx.exhausted() {
			if t := b.truncate(h.Span); !t.Empty() {
				normal = append(normal, frag.attach(try.ID, h.Exception, t)...)
			}
			break
		}
		hn := b.ctx.node(h.Header, ShapeRect, KindException, h.Span)
		frag.add(hn)
		frag.connect(try.ID, hn.ID, h.Exception)
		normal = append(normal, frag.attach(hn.ID, "", b.processBlock(h.Body, inner))...)
	}

	if !s.HasFinally {
		frag.exitAll(normal)
		return frag
	}

	if len(normal) > 0 {
		frag.connectExits(normal, fin.ID)
		frag.exitAll(finExits)
		return frag
	}
	if !referenced(frag, fin.ID) {
		// Every path left through break or continue; the finally block is
		// never entered and the statement is terminal.
		frag.drop(finIDs)
		return frag
	}

	// Every path into the finally block was a return or raise: after it runs,
	// control continues to wherever those would have gone.
	target := fc.raiseTarget()
	if returnsInto(frag, fin.ID) {
		target = fc.returnTarget()
	}
	for _, ep := range finExits {
		frag.connect(ep.ID, target, ep.Label)
		frag.Terminals[ep.ID] = true
	}
	return frag
}

// returnsInto reports whether a return node is wired to id.
func returnsInto(f *Fragment, id string) bool {
	kinds := make(map[string]NodeKind, len(f.Nodes))
	for _, n := range f.Nodes {
		kinds[n.ID] = n.Kind
	}
	for _, e := range f.Edges {
		if e.To == id && kinds[e.From] == KindReturn {
			return true
		}
	}
	return false
}
