package cfg

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Reachable returns the ids of the nodes reachable from the entry node, the
// entry included.
func Reachable(g *FlowGraph) map[string]bool {
	return reachableFrom(g.EntryNodeID, g.Nodes, g.Edges)
}

func reachableFrom(entry string, nodes []Node, edges []Edge) map[string]bool {
	dg := simple.NewDirectedGraph()
	index := make(map[string]int64, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		index[n.ID] = int64(i)
		ids[i] = n.ID
		dg.AddNode(simple.Node(i))
	}
	for _, e := range edges {
		from, ok := index[e.From]
		if !ok {
			continue
		}
		to, ok := index[e.To]
		// Self loops add nothing to reachability and simple graphs reject them.
		if !ok || from == to {
			continue
		}
		dg.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	}

	seen := make(map[string]bool, len(nodes))
	start, ok := index[entry]
	if !ok {
		return seen
	}
	var bf traverse.BreadthFirst
	bf.Walk(dg, simple.Node(start), func(n graph.Node, _ int) bool {
		seen[ids[n.ID()]] = true
		return false
	})
	seen[entry] = true
	return seen
}
