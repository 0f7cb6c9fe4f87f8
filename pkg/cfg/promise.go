package cfg

import "fmt"

// promisePlan holds the ids reserved for a chain so that callbacks can be
// wired to steps that are built after them.
type promisePlan struct {
	steps   []PromiseStep
	header  []string
	reject  []string // header of the onRejected handler of .then(ok, fail)
	settled string
}

// fulfilledAfter is the node that receives a resolved value after step i.
func (p *promisePlan) fulfilledAfter(i int) string {
	for j := i + 1; j < len(p.steps); j++ {
		if op := p.steps[j].Op; op == OpThen || op == OpFinally {
			return p.header[j]
		}
	}
	return p.settled
}

// rejectedAfter is the node that handles a rejection raised at or before
// step i, or "" when nothing in the chain handles it.
func (p *promisePlan) rejectedAfter(i int) string {
	for j := i + 1; j < len(p.steps); j++ {
		switch {
		case p.steps[j].Op == OpCatch, p.steps[j].Op == OpFinally:
			return p.header[j]
		case p.reject[j] != "":
			return p.reject[j]
		}
	}
	return ""
}

// processPromise expands source.then(...).catch(...).finally(...) into
// continuation nodes. Rejected edges are drawn only toward a handler.
func (b *builder) processPromise(s *PromiseChain, fc flowContext) *Fragment {
	frag := newFragment()
	src := b.ctx.node(s.Source, ShapeRect, KindAsync, s.SourceSpan)
	frag.add(src)
	frag.Entry = src.ID

	// Steps past the node ceiling are dropped and the settled node becomes
	// the truncation placeholder.
	p := &promisePlan{}
	for _, st := range s.Steps {
		if b.ctx.exhausted() {
			break
		}
		rej := ""
		p.steps = append(p.steps, st)
		p.header = append(p.header, b.ctx.reserve())
		if st.Op == OpThen && st.OnRejected != nil {
			rej = b.ctx.reserve()
		}
		p.reject = append(p.reject, rej)
	}
	cut := len(p.steps) < len(s.Steps)
	p.settled = b.ctx.reserve()

	// Unhandled rejections of an awaited chain propagate like a raise.
	unhandled := ""
	if s.Await {
		unhandled = fc.raiseTarget()
	}
	rejectTo := func(i int) string {
		if t := p.rejectedAfter(i); t != "" {
			return t
		}
		return unhandled
	}

	frag.connect(src.ID, p.fulfilledAfter(-1), "")
	b.rejectEdge(frag, src.ID, p.rejectedAfter(-1))

	for i, st := range p.steps {
		next := p.fulfilledAfter(i)
		hdr := b.ctx.nodeWithID(p.header[i], stepLabel(st.Op, st.OnSettled), ShapeStadium, KindAsync, st.Span)
		frag.add(hdr)
		b.continuation(frag, hdr.ID, st.OnSettled, next, rejectTo(i), fc)

		switch st.Op {
		case OpThen:
			b.rejectEdge(frag, hdr.ID, p.rejectedAfter(i))
			if st.OnRejected != nil {
				rej := b.ctx.nodeWithID(p.reject[i], stepLabel(OpCatch, st.OnRejected), ShapeStadium, KindAsync, st.OnRejected.Span)
				frag.add(rej)
				b.continuation(frag, rej.ID, st.OnRejected, next, rejectTo(i), fc)
			}
		case OpFinally:
			b.rejectEdge(frag, hdr.ID, p.rejectedAfter(i))
		}
	}

	label := "promise settled"
	switch {
	case s.Return:
		label = "return settled value"
	case s.Target != "" && s.Await:
		label = s.Target + " = await result"
	case s.Target != "":
		label = s.Target + " = promise"
	case s.Await:
		label = "await result"
	}
	kind := KindAsync
	if s.Return {
		kind = KindReturn
	}
	if cut && !b.ctx.truncated {
		b.ctx.truncated = true
		t := b.ctx.nodeWithID(p.settled, TruncatedLabel, ShapeRound, KindTruncated, Span{})
		frag.add(t)
		frag.exit(t.ID, "")
		return frag
	}
	settled := b.ctx.nodeWithID(p.settled, label, ShapeRect, kind, Span{})
	frag.add(settled)
	if s.Return {
		frag.connect(settled.ID, fc.returnTarget(), "")
		frag.Terminals[settled.ID] = true
		return frag
	}
	frag.exit(settled.ID, "")
	return frag
}

func (b *builder) rejectEdge(frag *Fragment, from, to string) {
	if to != "" {
		frag.connect(from, to, LabelRejected)
	}
}

// continuation wires one callback between its header and the next step.
// Returns resolve to next; raises reject to the next handler.
func (b *builder) continuation(frag *Fragment, header string, cb *Callback, next, rejectTo string, fc flowContext) {
	if cb == nil {
		frag.connect(header, next, "")
		return
	}
	var body *Fragment
	if cb.Named != "" {
		body = b.simple(fmt.Sprintf("%s(%s)", cb.Named, itemName(cb.Params)), KindCall, cb.Span)
	} else {
		// A throw with no handler in the chain propagates like a raise from
		// the enclosing function.
		inner := fc.callback(next)
		if rejectTo != "" {
			inner.raiseTo = rejectTo
		}
		body = b.processBlock(cb.Body, inner)
	}
	if body.Empty() {
		frag.connect(header, next, "")
		return
	}
	frag.absorb(body)
	frag.connect(header, body.Entry, "")
	frag.connectExits(body.Exits, next)
}

func stepLabel(op PromiseOp, cb *Callback) string {
	params := ""
	if cb != nil {
		params = cb.Params
		if cb.Named != "" {
			params = cb.Named
		}
	}
	return fmt.Sprintf(".%s(%s)", op, trimParens(params))
}

func trimParens(s string) string {
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		return s[1 : len(s)-1]
	}
	return s
}
