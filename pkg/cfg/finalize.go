package cfg

// finalize closes the body fragment between the entry and exit nodes, drops
// edges whose endpoints were never created or cannot be reached and
// collapses duplicates.
func finalize(entry, exit Node, body *Fragment, locations []LocationEntry) *FlowGraph {
	nodes := make([]Node, 0, len(body.Nodes)+2)
	nodes = append(nodes, entry)
	nodes = append(nodes, body.Nodes...)
	nodes = append(nodes, exit)

	edges := make([]Edge, 0, len(body.Edges)+len(body.Exits)+1)
	if body.Empty() {
		edges = append(edges, Edge{From: entry.ID, To: exit.ID})
	} else {
		edges = append(edges, Edge{From: entry.ID, To: body.Entry})
		edges = append(edges, body.Edges...)
		for _, ep := range body.Exits {
			if body.Terminals[ep.ID] {
				continue
			}
			edges = append(edges, Edge{From: ep.ID, To: exit.ID, Label: ep.Label})
		}
	}

	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	edges = cleanEdges(edges, ids)

	// Nodes the entry cannot reach (a loop condition after a body that
	// always returns) are dropped. The exit node always stays.
	reach := reachableFrom(entry.ID, nodes, edges)
	kept := nodes[:0]
	for _, n := range nodes {
		if reach[n.ID] || n.ID == exit.ID {
			kept = append(kept, n)
		} else {
			delete(ids, n.ID)
		}
	}
	nodes = kept

	g := &FlowGraph{
		Nodes:       nodes,
		Edges:       cleanEdges(edges, ids),
		LocationMap: make([]LocationEntry, 0, len(locations)),
		EntryNodeID: entry.ID,
		ExitNodeID:  exit.ID,
	}
	for _, loc := range locations {
		if ids[loc.NodeID] {
			g.LocationMap = append(g.LocationMap, loc)
		}
	}
	g.Complexity = CyclomaticComplexity(g)
	return g
}

func cleanEdges(edges []Edge, ids map[string]bool) []Edge {
	seen := make(map[Edge]bool, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if !ids[e.From] || !ids[e.To] || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// CyclomaticComplexity returns E - N + 2 for the graph, never less than one.
func CyclomaticComplexity(g *FlowGraph) int {
	c := len(g.Edges) - len(g.Nodes) + 2
	if c < 1 {
		return 1
	}
	return c
}
