package cfg

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stmt(text string) *Simple { return &Simple{Text: text, Kind: KindCall} }
func ret(text string) *Return  { return &Return{Text: text} }
func block(s ...Stmt) Block    { return Block(s) }

func build(body ...Stmt) *FlowGraph {
	return Build(&Function{Title: "f()", Body: body}, DefaultOptions())
}

func nodeByLabel(t *testing.T, g *FlowGraph, label string) Node {
	t.Helper()
	for _, n := range g.Nodes {
		if n.Label == label {
			return n
		}
	}
	require.Failf(t, "node not found", "no node labeled %q", label)
	return Node{}
}

func hasEdge(g *FlowGraph, from, to, label string) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to && e.Label == label {
			return true
		}
	}
	return false
}

// assertWellFormed checks the structural guarantees every graph must hold.
func assertWellFormed(t *testing.T, g *FlowGraph) {
	t.Helper()
	ids := make(map[string]bool)
	for _, n := range g.Nodes {
		assert.False(t, ids[n.ID], "duplicate node id %s", n.ID)
		ids[n.ID] = true
	}
	seen := make(map[Edge]bool)
	for _, e := range g.Edges {
		assert.True(t, ids[e.From], "dangling edge source %v", e)
		assert.True(t, ids[e.To], "dangling edge target %v", e)
		assert.False(t, seen[e], "duplicate edge %v", e)
		seen[e] = true
	}
	assert.Empty(t, g.EdgesTo(g.EntryNodeID), "entry must have no incoming edges")
	for _, loc := range g.LocationMap {
		assert.True(t, ids[loc.NodeID], "location for unknown node %s", loc.NodeID)
	}
	reach := Reachable(g)
	for _, n := range g.Nodes {
		if n.ID != g.ExitNodeID {
			assert.True(t, reach[n.ID], "node %s %q is unreachable", n.ID, n.Label)
		}
	}
}

func TestEmptyBody(t *testing.T) {
	g := build()
	assertWellFormed(t, g)

	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, Edge{From: g.EntryNodeID, To: g.ExitNodeID}, g.Edges[0])
	assert.Equal(t, 1, g.Complexity)
}

func TestStraightLine(t *testing.T) {
	g := build(stmt("a()"), stmt("b()"), stmt("c()"))
	assertWellFormed(t, g)

	a, b, c := nodeByLabel(t, g, "a()"), nodeByLabel(t, g, "b()"), nodeByLabel(t, g, "c()")
	assert.True(t, hasEdge(g, g.EntryNodeID, a.ID, ""))
	assert.True(t, hasEdge(g, a.ID, b.ID, ""))
	assert.True(t, hasEdge(g, b.ID, c.ID, ""))
	assert.True(t, hasEdge(g, c.ID, g.ExitNodeID, ""))
	assert.Len(t, Reachable(g), len(g.Nodes))
}

func TestIfElseBothReturn(t *testing.T) {
	g := build(&If{
		Branches: []Branch{{Cond: "x", Body: block(ret("return 1"))}},
		Else:     block(ret("return 2")),
	})
	assertWellFormed(t, g)

	cond := nodeByLabel(t, g, "x")
	assert.Equal(t, ShapeDiamond, cond.Shape)
	out := g.EdgesFrom(cond.ID)
	require.Len(t, out, 2)
	assert.Equal(t, LabelTrue, out[0].Label)
	assert.Equal(t, LabelFalse, out[1].Label)
	for _, e := range out {
		assert.NotEqual(t, g.ExitNodeID, e.To, "decision must not reach exit directly")
		n, ok := g.Node(e.To)
		require.True(t, ok)
		assert.Equal(t, KindReturn, n.Kind)
		assert.True(t, hasEdge(g, n.ID, g.ExitNodeID, ""))
	}
}

func TestIfWithoutElse(t *testing.T) {
	g := build(
		&If{Branches: []Branch{{Cond: "x > 0", Body: block(stmt("pos()"))}}},
		stmt("after()"),
	)
	assertWellFormed(t, g)

	cond := nodeByLabel(t, g, "x > 0")
	after := nodeByLabel(t, g, "after()")
	assert.True(t, hasEdge(g, cond.ID, after.ID, LabelFalse))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "pos()").ID, after.ID, ""))
}

func TestElifChain(t *testing.T) {
	g := build(&If{
		Branches: []Branch{
			{Cond: "a", Body: block(stmt("one()"))},
			{Cond: "b"},
			{Cond: "c", Body: block(stmt("three()"))},
		},
		Else: block(stmt("other()")),
	})
	assertWellFormed(t, g)

	a, b, c := nodeByLabel(t, g, "a"), nodeByLabel(t, g, "b"), nodeByLabel(t, g, "c")
	assert.True(t, hasEdge(g, a.ID, b.ID, LabelFalse))
	assert.True(t, hasEdge(g, b.ID, c.ID, LabelFalse))
	// An empty consequence leaves the condition as a True exit point.
	assert.True(t, hasEdge(g, b.ID, g.ExitNodeID, LabelTrue))
	assert.True(t, hasEdge(g, c.ID, nodeByLabel(t, g, "other()").ID, LabelFalse))
}

func TestDeadCodeAfterReturnIsSkipped(t *testing.T) {
	g := build(ret("return 1"), stmt("dead()"))
	assertWellFormed(t, g)

	for _, n := range g.Nodes {
		assert.NotEqual(t, "dead()", n.Label)
	}
}

func TestWhileLoopClosure(t *testing.T) {
	g := build(&While{Header: "while n > 0", Body: block(stmt("a()"), stmt("n -= 1"))}, stmt("done()"))
	assertWellFormed(t, g)

	header := nodeByLabel(t, g, "while n > 0")
	end := g.NodesOfKind(KindLoopEnd)
	require.Len(t, end, 1)

	assert.True(t, hasEdge(g, header.ID, nodeByLabel(t, g, "a()").ID, LabelTrue))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "n -= 1").ID, header.ID, ""))

	toEnd := 0
	for _, e := range g.EdgesFrom(header.ID) {
		if e.To == end[0].ID {
			toEnd++
			assert.Equal(t, LabelFalse, e.Label)
		}
	}
	assert.Equal(t, 1, toEnd)
	assert.True(t, hasEdge(g, end[0].ID, nodeByLabel(t, g, "done()").ID, ""))
}

func TestWhileElseAndBreak(t *testing.T) {
	g := build(&While{
		Header: "while more()",
		Body:   block(&If{Branches: []Branch{{Cond: "found", Body: block(&Break{Text: "break"})}}}),
		Else:   block(stmt("not_found()")),
	})
	assertWellFormed(t, g)

	header := nodeByLabel(t, g, "while more()")
	end := g.NodesOfKind(KindLoopEnd)[0]
	brk := nodeByLabel(t, g, "break")
	orelse := nodeByLabel(t, g, "not_found()")

	assert.True(t, hasEdge(g, brk.ID, end.ID, ""))
	assert.True(t, hasEdge(g, header.ID, orelse.ID, LabelFalse))
	assert.True(t, hasEdge(g, orelse.ID, end.ID, ""))
	assert.False(t, hasEdge(g, header.ID, end.ID, LabelFalse))
	// The False edge of the inner condition continues the loop.
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "found").ID, header.ID, LabelFalse))
}

func TestForEachOnlyContinue(t *testing.T) {
	g := build(&ForEach{Header: "for x in xs", Body: block(&Continue{Text: "continue"})})
	assertWellFormed(t, g)

	header := nodeByLabel(t, g, "for x in xs")
	cont := nodeByLabel(t, g, "continue")
	end := g.NodesOfKind(KindLoopEnd)[0]

	assert.Equal(t, []Edge{{From: cont.ID, To: header.ID}}, g.EdgesFrom(cont.ID))
	assert.True(t, hasEdge(g, header.ID, cont.ID, LabelNext))
	assert.True(t, hasEdge(g, header.ID, end.ID, LabelDone))
	assert.Len(t, g.EdgesTo(end.ID), 1, "only the header reaches the loop end")
}

func TestCStyleForContinueTargetsUpdate(t *testing.T) {
	g := build(&For{
		Init:   Clause{Text: "let i = 0"},
		Cond:   Clause{Text: "i < n"},
		Update: Clause{Text: "i++"},
		Body:   block(&If{Branches: []Branch{{Cond: "skip(i)", Body: block(&Continue{Text: "continue"})}}}, stmt("use(i)")),
	})
	assertWellFormed(t, g)

	init, cond, update := nodeByLabel(t, g, "let i = 0"), nodeByLabel(t, g, "i < n"), nodeByLabel(t, g, "i++")
	assert.True(t, hasEdge(g, g.EntryNodeID, init.ID, ""))
	assert.True(t, hasEdge(g, init.ID, cond.ID, ""))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "continue").ID, update.ID, ""))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "use(i)").ID, update.ID, ""))
	assert.True(t, hasEdge(g, update.ID, cond.ID, LabelLoop))
	assert.True(t, hasEdge(g, cond.ID, g.NodesOfKind(KindLoopEnd)[0].ID, LabelFalse))
}

func TestDoWhile(t *testing.T) {
	g := build(&DoWhile{Cond: "while (again())", Body: block(stmt("work()"))})
	assertWellFormed(t, g)

	work, cond := nodeByLabel(t, g, "work()"), nodeByLabel(t, g, "while (again())")
	assert.True(t, hasEdge(g, g.EntryNodeID, work.ID, ""))
	assert.True(t, hasEdge(g, work.ID, cond.ID, ""))
	assert.True(t, hasEdge(g, cond.ID, work.ID, LabelTrue))
	assert.True(t, hasEdge(g, cond.ID, g.NodesOfKind(KindLoopEnd)[0].ID, LabelFalse))
}

func TestTryFinallyRedirectsReturn(t *testing.T) {
	g := build(&Try{
		Body: block(ret("return load()")),
		Handlers: []Handler{{
			Header: "except ValueError", Exception: "ValueError",
			Body: block(stmt("log()")),
		}},
		Finally:    block(stmt("cleanup()")),
		HasFinally: true,
	})
	assertWellFormed(t, g)

	try := nodeByLabel(t, g, "try")
	fin := nodeByLabel(t, g, "finally")
	r := nodeByLabel(t, g, "return load()")
	handler := nodeByLabel(t, g, "except ValueError")
	cleanup := nodeByLabel(t, g, "cleanup()")

	assert.Equal(t, []Edge{{From: r.ID, To: fin.ID}}, g.EdgesFrom(r.ID))
	assert.True(t, hasEdge(g, try.ID, handler.ID, "ValueError"))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "log()").ID, fin.ID, ""))
	assert.True(t, hasEdge(g, fin.ID, cleanup.ID, ""))
	assert.True(t, hasEdge(g, cleanup.ID, g.ExitNodeID, ""))
}

func TestTryFinallyAllPathsTerminal(t *testing.T) {
	g := build(&Try{
		Body:       block(ret("return 1")),
		Finally:    block(stmt("cleanup()")),
		HasFinally: true,
	}, stmt("unreachable()"))
	assertWellFormed(t, g)

	cleanup := nodeByLabel(t, g, "cleanup()")
	assert.True(t, hasEdge(g, cleanup.ID, g.ExitNodeID, ""))
	for _, n := range g.Nodes {
		assert.NotEqual(t, "unreachable()", n.Label)
	}
}

func TestNestedFinallyChains(t *testing.T) {
	g := build(&Try{
		Body: block(&Try{
			Body:       block(&Raise{Text: "raise Boom()"}),
			Finally:    block(stmt("inner()")),
			HasFinally: true,
		}),
		Finally:    block(stmt("outer()")),
		HasFinally: true,
	})
	assertWellFormed(t, g)

	raise := nodeByLabel(t, g, "raise Boom()")
	inner := nodeByLabel(t, g, "inner()")
	fins := []Node{}
	for _, n := range g.Nodes {
		if n.Label == "finally" {
			fins = append(fins, n)
		}
	}
	require.Len(t, fins, 2)
	outerFin, innerFin := fins[0], fins[1]
	assert.True(t, hasEdge(g, raise.ID, innerFin.ID, ""))
	assert.True(t, hasEdge(g, inner.ID, outerFin.ID, ""))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "outer()").ID, g.ExitNodeID, ""))
}

func TestTryElse(t *testing.T) {
	g := build(&Try{
		Body:     block(stmt("risky()")),
		Handlers: []Handler{{Header: "except:", Body: block(stmt("recover()"))}},
		Else:     block(stmt("ok()")),
	})
	assertWellFormed(t, g)

	assert.True(t, hasEdge(g, nodeByLabel(t, g, "risky()").ID, nodeByLabel(t, g, "ok()").ID, ""))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "ok()").ID, g.ExitNodeID, ""))
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "recover()").ID, g.ExitNodeID, ""))
}

func TestBreakOutsideLoopFallsBack(t *testing.T) {
	g := build(&Break{Text: "break"}, stmt("next()"))
	assertWellFormed(t, g)

	brk := nodeByLabel(t, g, "break")
	assert.Equal(t, KindStatement, brk.Kind)
	assert.True(t, hasEdge(g, brk.ID, nodeByLabel(t, g, "next()").ID, ""))
}

func TestSwitch(t *testing.T) {
	t.Run("break targets lazily created end", func(t *testing.T) {
		g := build(&Switch{
			Subject:   "switch (x)",
			Breakable: true,
			Cases: []Case{
				{Guard: "case 1", Body: block(stmt("one()"), &Break{Text: "break"})},
				{Guard: "case 2"},
				{Default: true, Body: block(stmt("fallback()"))},
			},
		})
		assertWellFormed(t, g)

		subject := nodeByLabel(t, g, "switch (x)")
		c1, c2 := nodeByLabel(t, g, "case 1"), nodeByLabel(t, g, "case 2")
		end := nodeByLabel(t, g, switchEndLabel)
		assert.True(t, hasEdge(g, subject.ID, c1.ID, ""))
		assert.True(t, hasEdge(g, c1.ID, c2.ID, LabelFalse))
		assert.True(t, hasEdge(g, nodeByLabel(t, g, "break").ID, end.ID, ""))
		assert.True(t, hasEdge(g, c2.ID, g.ExitNodeID, LabelTrue))
		assert.True(t, hasEdge(g, c2.ID, nodeByLabel(t, g, "fallback()").ID, LabelFalse))
		assert.True(t, hasEdge(g, end.ID, g.ExitNodeID, ""))
	})

	t.Run("no end node without break", func(t *testing.T) {
		g := build(&Switch{
			Subject:   "switch (x)",
			Breakable: true,
			Cases:     []Case{{Guard: "case 1", Body: block(ret("return 1"))}},
		})
		assertWellFormed(t, g)
		assert.Empty(t, g.NodesOfKind(KindLoopEnd))
	})

	t.Run("match break leaves enclosing loop", func(t *testing.T) {
		g := build(&While{
			Header: "while True",
			Body: block(&Switch{
				Subject: "match cmd",
				Cases: []Case{
					{Guard: `case "quit"`, Body: block(&Break{Text: "break"})},
					{Default: true, Guard: "case _", Body: block(&Continue{Text: "continue"})},
				},
			}),
		})
		assertWellFormed(t, g)

		end := g.NodesOfKind(KindLoopEnd)
		require.Len(t, end, 1)
		assert.True(t, hasEdge(g, nodeByLabel(t, g, "break").ID, end[0].ID, ""))
		assert.True(t, hasEdge(g, nodeByLabel(t, g, "continue").ID, nodeByLabel(t, g, "while True").ID, ""))
	})
}

func TestTernary(t *testing.T) {
	t.Run("assignment", func(t *testing.T) {
		g := build(&Ternary{Prefix: "y = ", Cond: "x > 0", Then: "x", Else: "-x"}, stmt("use(y)"))
		assertWellFormed(t, g)

		cond := nodeByLabel(t, g, "x > 0")
		then, els := nodeByLabel(t, g, "y = x"), nodeByLabel(t, g, "y = -x")
		use := nodeByLabel(t, g, "use(y)")
		assert.True(t, hasEdge(g, cond.ID, then.ID, LabelTrue))
		assert.True(t, hasEdge(g, cond.ID, els.ID, LabelFalse))
		assert.True(t, hasEdge(g, then.ID, use.ID, ""))
		assert.True(t, hasEdge(g, els.ID, use.ID, ""))
	})

	t.Run("implicit return", func(t *testing.T) {
		g := build(&Ternary{Prefix: "return ", Cond: "ok", Then: "a", Else: "b", Return: true})
		assertWellFormed(t, g)

		returns := g.NodesOfKind(KindReturn)
		require.Len(t, returns, 2)
		for _, r := range returns {
			assert.Equal(t, []Edge{{From: r.ID, To: g.ExitNodeID}}, g.EdgesFrom(r.ID))
		}
	})
}

func TestAssert(t *testing.T) {
	g := build(&Assert{Text: "assert x", Cond: "x"}, stmt("go()"))
	assertWellFormed(t, g)

	a := nodeByLabel(t, g, "assert x")
	assert.True(t, hasEdge(g, a.ID, g.ExitNodeID, LabelFalse))
	assert.True(t, hasEdge(g, a.ID, nodeByLabel(t, g, "go()").ID, LabelTrue))
}

func TestWith(t *testing.T) {
	g := build(&With{Header: "with open(p) as f", Body: block(stmt("f.read()"))})
	assertWellFormed(t, g)

	assert.True(t, hasEdge(g, nodeByLabel(t, g, "with open(p) as f").ID, nodeByLabel(t, g, "f.read()").ID, ""))
}

func TestLocationMap(t *testing.T) {
	g := Build(&Function{
		Title:  "f()",
		Span:   Span{Start: 0, End: 40},
		Header: Span{Start: 0, End: 8},
		Body:   block(&Simple{Span: Span{Start: 12, End: 20}, Text: "x = 1", Kind: KindAssignment}),
	}, DefaultOptions())
	assertWellFormed(t, g)

	x := nodeByLabel(t, g, "x = 1")
	assert.Contains(t, g.LocationMap, LocationEntry{Start: 12, End: 20, NodeID: x.ID})
	assert.Contains(t, g.LocationMap, LocationEntry{Start: 0, End: 8, NodeID: g.EntryNodeID})
	require.NotNil(t, g.FunctionRange)
	assert.Equal(t, Range{Start: 0, End: 40}, *g.FunctionRange)
}

func TestLabelShortening(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxLabelLength = 10
	g := Build(&Function{Body: block(stmt("something_rather_long(a,   b)"))}, opts)

	n := g.NodesOfKind(KindCall)[0]
	assert.Equal(t, "somethi...", n.Label)
}

func TestTruncation(t *testing.T) {
	t.Run("node ceiling", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxNodes = 5
		var body Block
		for i := 0; i < 10; i++ {
			body = append(body, stmt("s()"))
		}
		g := Build(&Function{Body: body}, opts)
		assertWellFormed(t, g)

		assert.True(t, g.Truncated)
		tr := g.NodesOfKind(KindTruncated)
		require.Len(t, tr, 1)
		assert.Equal(t, TruncatedLabel, tr[0].Label)
		assert.True(t, hasEdge(g, tr[0].ID, g.ExitNodeID, ""))
	})

	t.Run("depth ceiling", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxDepth = 2
		var s Stmt = stmt("deep()")
		for i := 0; i < 5; i++ {
			s = &If{Branches: []Branch{{Cond: "c", Body: block(s)}}}
		}
		g := Build(&Function{Body: block(s, stmt("after()"))}, opts)
		assertWellFormed(t, g)

		assert.True(t, g.Truncated)
		assert.Len(t, g.NodesOfKind(KindTruncated), 1)
		for _, n := range g.Nodes {
			assert.NotEqual(t, "deep()", n.Label)
			assert.NotEqual(t, "after()", n.Label)
		}
	})
}

func TestIdempotentAndConcurrent(t *testing.T) {
	fn := &Function{Title: "f()", Body: block(
		&While{Header: "while x", Body: block(
			&If{Branches: []Branch{{Cond: "y", Body: block(&Break{Text: "break"})}}},
			stmt("step()"),
		)},
		ret("return x"),
	)}
	want := Build(fn, DefaultOptions())
	assert.Equal(t, want, Build(fn, DefaultOptions()))

	var wg sync.WaitGroup
	results := make([]*FlowGraph, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Build(fn, DefaultOptions())
		}(i)
	}
	wg.Wait()
	for _, g := range results {
		assert.Equal(t, want, g)
	}
}

func TestComplexity(t *testing.T) {
	g := build(&If{Branches: []Branch{{Cond: "a", Body: block(stmt("x()"))}}, Else: block(stmt("y()"))})
	// entry, exit, a, x, y: 5 nodes; entry->a, a->x, a->y, x->exit, y->exit: 5 edges.
	assert.Equal(t, 2, g.Complexity)
	assert.Equal(t, g.Complexity, CyclomaticComplexity(g))
}

func TestMessage(t *testing.T) {
	g := Message("nothing here")
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "n0", g.Nodes[0].ID)
	assert.Equal(t, KindInfo, g.Nodes[0].Kind)
	assert.True(t, g.Degenerate)
	assert.Empty(t, g.Edges)
}

func TestLongChainsTruncate(t *testing.T) {
	opts := DefaultOptions()

	var branches []Branch
	for i := 0; i < 2000; i++ {
		branches = append(branches, Branch{Cond: fmt.Sprintf("x == %d", i)})
	}
	var cases []Case
	for i := 0; i < 2000; i++ {
		cases = append(cases, Case{Guard: fmt.Sprintf("case %d", i)})
	}
	var stages []HOFStage
	for i := 0; i < 400; i++ {
		stages = append(stages, HOFStage{Op: OpMap, Callback: Callback{Named: "f"}})
	}
	var steps []PromiseStep
	for i := 0; i < 2000; i++ {
		steps = append(steps, PromiseStep{Op: OpThen})
	}

	tests := []struct {
		name string
		stmt Stmt
	}{
		{"elif chain", &If{Branches: branches}},
		{"switch cases", &Switch{Subject: "switch x", Cases: cases, Breakable: true}},
		{"match cases", &Switch{Subject: "match x", Cases: cases}},
		{"hof stages", &HOFCall{Source: "xs", Stages: stages}},
		{"promise steps", &PromiseChain{Source: "load()", Steps: steps}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Build(&Function{Body: block(tt.stmt, stmt("after()"))}, opts)
			assertWellFormed(t, g)

			assert.True(t, g.Truncated)
			assert.Len(t, g.NodesOfKind(KindTruncated), 1)
			assert.LessOrEqual(t, len(g.Nodes), opts.MaxNodes+10)
		})
	}
}

func TestLabeledBreakAndContinue(t *testing.T) {
	g := build(
		&ForEach{
			Header: "for (const r of m)",
			Label:  "outer",
			Body: block(
				&ForEach{Header: "for (const c of r)", Body: block(
					&If{Branches: []Branch{{Cond: "c", Body: block(&Break{Text: "break outer", Label: "outer"})}}},
					&If{Branches: []Branch{{Cond: "skip(c)", Body: block(&Continue{Text: "continue outer", Label: "outer"})}}},
					stmt("g(c)"),
				)},
				stmt("h(r)"),
			),
		},
		stmt("done()"),
	)
	assertWellFormed(t, g)

	outer := nodeByLabel(t, g, "for (const r of m)")
	inner := nodeByLabel(t, g, "for (const c of r)")
	brk := nodeByLabel(t, g, "break outer")
	cont := nodeByLabel(t, g, "continue outer")
	done := nodeByLabel(t, g, "done()")

	ends := g.NodesOfKind(KindLoopEnd)
	require.Len(t, ends, 2)
	var outerEnd Node
	for _, e := range ends {
		if hasEdge(g, e.ID, done.ID, "") {
			outerEnd = e
		}
	}
	require.NotEmpty(t, outerEnd.ID, "no loop end leads to done()")

	assert.Equal(t, []Edge{{From: brk.ID, To: outerEnd.ID}}, g.EdgesFrom(brk.ID))
	assert.Equal(t, []Edge{{From: cont.ID, To: outer.ID}}, g.EdgesFrom(cont.ID))
	assert.True(t, hasEdge(g, outer.ID, outerEnd.ID, LabelDone))
	assert.False(t, hasEdge(g, brk.ID, inner.ID, ""))
}

func TestUnknownLabelFallsBack(t *testing.T) {
	g := build(&While{Header: "while x", Body: block(&Break{Text: "break missing", Label: "missing"})})
	assertWellFormed(t, g)

	n := nodeByLabel(t, g, "break missing")
	assert.Equal(t, KindStatement, n.Kind)
	assert.True(t, hasEdge(g, n.ID, nodeByLabel(t, g, "while x").ID, ""))
}

func TestLoopElseAlwaysReturns(t *testing.T) {
	g := build(
		&ForEach{Header: "for x in xs", Body: block(stmt("a(x)")), Else: block(ret("return 0"))},
		stmt("after()"),
	)
	assertWellFormed(t, g)

	assert.Empty(t, g.NodesOfKind(KindLoopEnd))
	for _, n := range g.Nodes {
		assert.NotEqual(t, "after()", n.Label)
	}
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "return 0").ID, g.ExitNodeID, ""))
}

func TestFinallyNeverEntered(t *testing.T) {
	g := build(&While{Header: "while x", Body: block(
		&Try{Body: block(&Break{Text: "break"}), Finally: block(stmt("cleanup()")), HasFinally: true},
		stmt("unreached()"),
	)}, stmt("after()"))
	assertWellFormed(t, g)

	for _, n := range g.Nodes {
		assert.NotEqual(t, "finally", n.Label)
		assert.NotEqual(t, "cleanup()", n.Label)
		assert.NotEqual(t, "unreached()", n.Label)
	}
	end := g.NodesOfKind(KindLoopEnd)[0]
	assert.True(t, hasEdge(g, nodeByLabel(t, g, "break").ID, end.ID, ""))
	assert.True(t, hasEdge(g, end.ID, nodeByLabel(t, g, "after()").ID, ""))
}

func TestFragmentExitsAndTerminalsAreDisjoint(t *testing.T) {
	loop := func(body ...Stmt) Stmt { return &While{Header: "while x", Body: block(body...)} }
	tests := []struct {
		name  string
		block Block
	}{
		{"straight line", block(stmt("a()"), stmt("b()"))},
		{"return", block(ret("return 1"))},
		{"if both return", block(&If{Branches: []Branch{{Cond: "c", Body: block(ret("return 1"))}}, Else: block(ret("return 2"))})},
		{"if one returns", block(&If{Branches: []Branch{{Cond: "c", Body: block(ret("return 1"))}}})},
		{"loop with break", block(loop(&If{Branches: []Branch{{Cond: "c", Body: block(&Break{Text: "break"})}}}))},
		{"try finally all terminal", block(&Try{Body: block(ret("return 1")), Finally: block(stmt("f()")), HasFinally: true})},
		{"try finally mixed", block(&Try{
			Body:       block(&If{Branches: []Branch{{Cond: "c", Body: block(ret("return 1"))}}}),
			Handlers:   []Handler{{Header: "except E", Exception: "E", Body: block(&Raise{Text: "raise"})}},
			Finally:    block(stmt("f()")),
			HasFinally: true,
		})},
		{"switch", block(&Switch{Subject: "switch x", Breakable: true, Cases: []Case{
			{Guard: "case 1", Body: block(ret("return 1"))},
			{Guard: "case 2", Body: block(&Break{Text: "break"})},
			{Guard: "default", Default: true},
		}})},
		{"ternary return", block(&Ternary{Cond: "c", Then: "1", Else: "2", Return: true})},
		{"hof return", block(&HOFCall{Source: "xs", Return: true, Stages: []HOFStage{{
			Op: OpFilter, Callback: Callback{Params: "x", Body: block(&If{Branches: []Branch{{Cond: "x", Body: block(ret("return true"))}}}, ret("return false"))},
		}}})},
		{"promise", block(&PromiseChain{Source: "load()", Steps: []PromiseStep{
			{Op: OpThen, OnSettled: &Callback{Params: "x", Body: block(&Raise{Text: "throw e"})}},
			{Op: OpCatch, OnSettled: &Callback{Params: "e", Body: block(ret("return 0"))}},
		}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &builder{ctx: NewBuildContext(DefaultOptions())}
			fc := flowContext{returnTo: "exit", raiseTo: "exit"}
			frag := b.processBlock(tt.block, fc)
			for _, ep := range frag.Exits {
				assert.False(t, frag.Terminals[ep.ID], "%s is both an exit point and terminal", ep.ID)
			}
			for _, s := range tt.block {
				sf := b.processStmt(s, fc)
				for _, ep := range sf.Exits {
					assert.False(t, sf.Terminals[ep.ID], "%T: %s is both an exit point and terminal", s, ep.ID)
				}
			}
		})
	}
}
