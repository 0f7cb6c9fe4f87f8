package cfg

const loopEndLabel = "end loop"

func (b *builder) loopEnd() string { return b.ctx.reserve() }

// closeLoop creates the loop end node. When nothing jumps to it (an else
// block that always returns and no break) the loop is terminal and the node
// is left out.
func (b *builder) closeLoop(frag *Fragment, endID string) {
	if !referenced(frag, endID) {
		return
	}
	end := b.ctx.nodeWithID(endID, loopEndLabel, ShapeRound, KindLoopEnd, Span{})
	frag.add(end)
	frag.exit(end.ID, "")
}

// processWhile handles while loops. The header leaves to the loop end exactly
// once, through the else block when there is one.
func (b *builder) processWhile(s *While, fc flowContext) *Fragment {
	return b.headerLoop(s.Header, KindLoop, s.Span, s.Body, s.Else, LabelTrue, LabelFalse, s.Label, fc)
}

// processForEach handles iteration over a collection.
func (b *builder) processForEach(s *ForEach, fc flowContext) *Fragment {
	kind := KindLoop
	if s.Async {
		kind = KindAsync
	}
	return b.headerLoop(s.Header, kind, s.Span, s.Body, s.Else, LabelNext, LabelDone, s.Label, fc)
}

func (b *builder) headerLoop(text string, kind NodeKind, span Span, body, orelse Block, enter, leave, label string, fc flowContext) *Fragment {
	frag := newFragment()
	header := b.ctx.node(text, ShapeDiamond, kind, span)
	frag.add(header)
	frag.Entry = header.ID
	endID := b.loopEnd()

	bf := b.processBlock(body, fc.withLabeledLoop(label, endID, header.ID))
	if bf.Empty() {
		frag.connect(header.ID, header.ID, enter)
	} else {
		frag.absorb(bf)
		frag.connect(header.ID, bf.Entry, enter)
		frag.connectExits(bf.Exits, header.ID)
	}

	ef := b.processBlock(orelse, fc)
	if ef.Empty() {
		frag.connect(header.ID, endID, leave)
	} else {
		frag.absorb(ef)
		frag.connect(header.ID, ef.Entry, leave)
		frag.connectExits(ef.Exits, endID)
	}
	b.closeLoop(frag, endID)
	return frag
}

// processFor handles the three-part C-style loop. Continue resumes at the
// update clause, or at the condition when there is none.
func (b *builder) processFor(s *For, fc flowContext) *Fragment {
	frag := newFragment()

	var init Node
	if s.Init.Text != "" {
		init = b.ctx.node(s.Init.Text, ShapeRect, KindAssignment, s.Init.Span)
		frag.add(init)
		frag.Entry = init.ID
	}

	condText := s.Cond.Text
	condSpan := s.Cond.Span
	if condText == "" {
		condText = "for (;;)"
		condSpan = s.Span
	}
	cond := b.ctx.node(condText, ShapeDiamond, KindLoop, condSpan)
	frag.add(cond)
	if frag.Entry == "" {
		frag.Entry = cond.ID
	} else {
		frag.connect(init.ID, cond.ID, "")
	}

	resume := cond.ID
	var update Node
	if s.Update.Text != "" {
		update = b.ctx.node(s.Update.Text, ShapeRect, KindAssignment, s.Update.Span)
		resume = update.ID
	}
	endID := b.loopEnd()

	bf := b.processBlock(s.Body, fc.withLabeledLoop(s.Label, endID, resume))
	if bf.Empty() {
		frag.connect(cond.ID, resume, LabelTrue)
	} else {
		frag.absorb(bf)
		frag.connect(cond.ID, bf.Entry, LabelTrue)
		frag.connectExits(bf.Exits, resume)
	}
	if update.ID != "" {
		frag.add(update)
		frag.connect(update.ID, cond.ID, LabelLoop)
	}
	frag.connect(cond.ID, endID, LabelFalse)
	b.closeLoop(frag, endID)
	return frag
}

// processDoWhile runs the body before the first test.
func (b *builder) processDoWhile(s *DoWhile, fc flowContext) *Fragment {
	frag := newFragment()
	condID := b.ctx.reserve()
	endID := b.loopEnd()

	bf := b.processBlock(s.Body, fc.withLabeledLoop(s.Label, endID, condID))
	cond := b.ctx.nodeWithID(condID, s.Cond, ShapeDiamond, KindLoop, s.CondSpan)
	if bf.Empty() {
		frag.add(cond)
		frag.Entry = cond.ID
		frag.connect(cond.ID, cond.ID, LabelTrue)
	} else {
		frag.absorb(bf)
		frag.add(cond)
		frag.Entry = bf.Entry
		frag.connectExits(bf.Exits, cond.ID)
		frag.connect(cond.ID, bf.Entry, LabelTrue)
	}
	frag.connect(cond.ID, endID, LabelFalse)
	b.closeLoop(frag, endID)
	return frag
}
