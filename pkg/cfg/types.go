// Package cfg builds control flow graphs for flowchart rendering.
// A language adapter lowers a function body into the statement IR defined in
// stmt.go; Build turns that IR into a FlowGraph of nodes, edges and a
// source-location index.
package cfg

// Shape is the visual shape a renderer uses for a node.
type Shape string

const (
	ShapeRect    Shape = "rect"
	ShapeDiamond Shape = "diamond"
	ShapeRound   Shape = "round"
	ShapeStadium Shape = "stadium"
)

// NodeKind classifies what a node represents.
type NodeKind string

const (
	KindEntry      NodeKind = "entry"
	KindExit       NodeKind = "exit"
	KindDecision   NodeKind = "decision"
	KindLoop       NodeKind = "loop"
	KindLoopEnd    NodeKind = "loop-end"
	KindException  NodeKind = "exception"
	KindAssignment NodeKind = "assignment"
	KindCall       NodeKind = "call"
	KindReturn     NodeKind = "return"
	KindRaise      NodeKind = "raise"
	KindBreak      NodeKind = "break"
	KindContinue   NodeKind = "continue"
	KindAsync      NodeKind = "async"
	KindHOF        NodeKind = "hof"
	KindStatement  NodeKind = "statement"
	KindInfo       NodeKind = "info"
	KindTruncated  NodeKind = "truncated"
)

// Edge labels shared by the builder and tests.
const (
	LabelTrue     = "True"
	LabelFalse    = "False"
	LabelNext     = "Next"
	LabelDone     = "Done"
	LabelLoop     = "Loop"
	LabelRejected = "rejected"
)

// Node is a vertex of the flow graph.
type Node struct {
	ID    string   `json:"id" msgpack:"id"`
	Label string   `json:"label" msgpack:"label"`
	Shape Shape    `json:"shape" msgpack:"shape"`
	Kind  NodeKind `json:"kind,omitempty" msgpack:"kind"`
}

// Edge is a directed arc between two nodes.
type Edge struct {
	From  string `json:"from" msgpack:"from"`
	To    string `json:"to" msgpack:"to"`
	Label string `json:"label,omitempty" msgpack:"label"`
}

// LocationEntry maps a byte span of the source to the node that shows it.
type LocationEntry struct {
	Start  int    `json:"start" msgpack:"start"`
	End    int    `json:"end" msgpack:"end"`
	NodeID string `json:"nodeId" msgpack:"node_id"`
}

// Range is a half-open byte span.
type Range struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

// FlowGraph is the finished graph handed to a renderer.
type FlowGraph struct {
	Nodes         []Node          `json:"nodes" msgpack:"nodes"`
	Edges         []Edge          `json:"edges" msgpack:"edges"`
	LocationMap   []LocationEntry `json:"locationMap" msgpack:"location_map"`
	Title         string          `json:"title,omitempty" msgpack:"title"`
	Language      string          `json:"language,omitempty" msgpack:"language"`
	EntryNodeID   string          `json:"entryNodeId,omitempty" msgpack:"entry_node_id"`
	ExitNodeID    string          `json:"exitNodeId,omitempty" msgpack:"exit_node_id"`
	FunctionRange *Range          `json:"functionRange,omitempty" msgpack:"function_range"`
	Complexity    int             `json:"cyclomaticComplexity,omitempty" msgpack:"complexity"`
	Truncated     bool            `json:"truncated,omitempty" msgpack:"truncated"`
	// Degenerate is set for the single-node informational graphs.
	Degenerate bool `json:"degenerate,omitempty" msgpack:"degenerate"`
}

// Node returns the node with the given id.
func (g *FlowGraph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// EdgesFrom returns the outgoing edges of id in insertion order.
func (g *FlowGraph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns the incoming edges of id in insertion order.
func (g *FlowGraph) EdgesTo(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// NodesOfKind returns all nodes of the given kind.
func (g *FlowGraph) NodesOfKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Message returns a single-node graph carrying an informational label.
// It is used for every degenerate outcome: no target, unparsable input,
// oversized functions.
func Message(label string) *FlowGraph {
	n := Node{ID: "n0", Label: label, Shape: ShapeRound, Kind: KindInfo}
	return &FlowGraph{
		Nodes:       []Node{n},
		Edges:       []Edge{},
		LocationMap: []LocationEntry{},
		EntryNodeID: n.ID,
		Degenerate:  true,
	}
}
