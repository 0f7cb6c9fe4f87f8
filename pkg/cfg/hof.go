package cfg

import (
	"fmt"
	"strings"
)

// hofShape describes how one higher-order operation is drawn.
type hofShape struct {
	collect string // label of the per-element node, empty for forEach
	test    bool   // the collect node is a predicate diamond
	stop    string // test outcome that short-circuits to the result
	result  string
}

var hofShapes = map[HOFOp]hofShape{
	OpMap:     {collect: "collect result", result: "mapped list"},
	OpFlatMap: {collect: "append results", result: "flattened list"},
	OpFilter:  {collect: "keep item?", test: true, result: "filtered list"},
	OpReduce:  {collect: "update accumulator", result: "accumulated value"},
	OpForEach: {result: "iteration done"},
	OpSome:    {collect: "matches?", test: true, stop: LabelTrue, result: "any matched"},
	OpEvery:   {collect: "matches?", test: true, stop: LabelFalse, result: "all matched"},
	OpFind:    {collect: "matches?", test: true, stop: LabelTrue, result: "found item"},
}

// processHOF unrolls a chain of higher-order calls into explicit loops:
// input -> controller -> callback body -> collect -> controller, and
// controller Done -> result. Each stage feeds its result to the next.
func (b *builder) processHOF(s *HOFCall, fc flowContext) *Fragment {
	frag := newFragment()
	input := b.ctx.node(s.Source, ShapeRect, KindHOF, s.SourceSpan)
	frag.add(input)
	frag.Entry = input.ID

	in := []ExitPoint{{ID: input.ID}}
	for i := range s.Stages {
		if b.cut(frag, in, s.Stages[i].Span) {
			return frag
		}
		in = b.hofStage(frag, &s.Stages[i], in, i == len(s.Stages)-1, s, fc)
	}
	frag.exitAll(in)
	return frag
}

func (b *builder) hofStage(frag *Fragment, st *HOFStage, in []ExitPoint, last bool, s *HOFCall, fc flowContext) []ExitPoint {
	shape, ok := hofShapes[st.Op]
	if !ok {
		shape = hofShapes[OpMap]
	}

	if st.Op == OpReduce && st.Initial != "" {
		acc := b.ctx.node(fmt.Sprintf("%s = %s", accumulator(st.Callback.Params), st.Initial), ShapeRect, KindAssignment, Span{})
		frag.add(acc)
		frag.connectExits(in, acc.ID)
		in = []ExitPoint{{ID: acc.ID}}
	}

	ctrl := b.ctx.node(controllerLabel(st), ShapeDiamond, KindHOF, st.Span)
	frag.add(ctrl)
	frag.connectExits(in, ctrl.ID)

	// The collect node is the target of callback returns, so its id is
	// needed before the body is built. forEach returns straight to the
	// controller.
	collectID := ctrl.ID
	if shape.collect != "" {
		collectID = b.ctx.reserve()
	}
	resultID := b.ctx.reserve()

	var body *Fragment
	if st.Callback.Named != "" {
		body = b.simple(fmt.Sprintf("%s(%s)", st.Callback.Named, itemName(st.Callback.Params)), KindCall, st.Callback.Span)
	} else {
		body = b.processBlock(st.Callback.Body, fc.callback(collectID))
	}
	if body.Empty() {
		frag.connect(ctrl.ID, collectID, LabelNext)
	} else {
		frag.absorb(body)
		frag.connect(ctrl.ID, body.Entry, LabelNext)
		frag.connectExits(body.Exits, collectID)
	}

	if shape.collect != "" {
		if shape.test {
			test := b.ctx.nodeWithID(collectID, shape.collect, ShapeDiamond, KindDecision, Span{})
			frag.add(test)
			switch {
			case st.Op == OpFilter:
				keep := b.ctx.node("keep item", ShapeRect, KindHOF, Span{})
				frag.add(keep)
				frag.connect(test.ID, keep.ID, LabelTrue)
				frag.connect(keep.ID, ctrl.ID, LabelLoop)
				frag.connect(test.ID, ctrl.ID, LabelFalse)
			case shape.stop == LabelTrue:
				frag.connect(test.ID, resultID, LabelTrue)
				frag.connect(test.ID, ctrl.ID, LabelFalse)
			default:
				frag.connect(test.ID, ctrl.ID, LabelTrue)
				frag.connect(test.ID, resultID, LabelFalse)
			}
		} else {
			collect := b.ctx.nodeWithID(collectID, shape.collect, ShapeRect, KindHOF, Span{})
			frag.add(collect)
			frag.connect(collect.ID, ctrl.ID, LabelLoop)
		}
	}
	frag.connect(ctrl.ID, resultID, LabelDone)

	label := shape.result
	if last {
		switch {
		case s.Return:
			label = "return " + label
		case s.Target != "":
			label = s.Target + " = " + label
		}
	}
	kind := KindHOF
	if last && s.Return {
		kind = KindReturn
	}
	result := b.ctx.nodeWithID(resultID, label, ShapeRect, kind, Span{})
	frag.add(result)
	if last && s.Return {
		frag.connect(result.ID, fc.returnTarget(), "")
		frag.Terminals[result.ID] = true
		return nil
	}
	return []ExitPoint{{ID: result.ID}}
}

func controllerLabel(st *HOFStage) string {
	item := itemName(st.Callback.Params)
	if st.Op == OpReduce {
		params := splitParams(st.Callback.Params)
		if len(params) > 1 {
			item = params[1]
		}
	}
	return fmt.Sprintf("%s: each %s", st.Op, item)
}

func splitParams(params string) []string {
	params = strings.Trim(strings.TrimSpace(params), "()")
	var out []string
	for _, p := range strings.Split(params, ",") {
		p = strings.TrimSpace(p)
		if i := strings.IndexAny(p, ":="); i >= 0 {
			p = strings.TrimSpace(p[:i])
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func itemName(params string) string {
	if p := splitParams(params); len(p) > 0 {
		return p[0]
	}
	return "item"
}

func accumulator(params string) string {
	if p := splitParams(params); len(p) > 0 {
		return p[0]
	}
	return "acc"
}
