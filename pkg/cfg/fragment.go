package cfg

// ExitPoint is a node from which control continues once the fragment is done,
// together with the label the continuing edge should carry.
type ExitPoint struct {
	ID    string
	Label string
}

// Fragment is the partial graph produced for one statement or block.
// An empty Entry means the fragment is a no-op. Terminals holds node ids that
// were already wired to a terminal target; such ids never appear in Exits.
type Fragment struct {
	Nodes     []Node
	Edges     []Edge
	Entry     string
	Exits     []ExitPoint
	Terminals map[string]bool
}

func newFragment() *Fragment {
	return &Fragment{Terminals: make(map[string]bool)}
}

// Empty reports whether the fragment contributes nothing to the flow.
func (f *Fragment) Empty() bool { return f.Entry == "" }

// Terminal reports whether no path leaves the fragment sequentially.
func (f *Fragment) Terminal() bool { return f.Entry != "" && len(f.Exits) == 0 }

func (f *Fragment) add(nodes ...Node) {
	f.Nodes = append(f.Nodes, nodes...)
}

func (f *Fragment) connect(from, to, label string) {
	if from == "" || to == "" {
		return
	}
	f.Edges = append(f.Edges, Edge{From: from, To: to, Label: label})
}

// connectExits wires every exit point to target, carrying its label.
func (f *Fragment) connectExits(exits []ExitPoint, target string) {
	for _, ep := range exits {
		f.connect(ep.ID, target, ep.Label)
	}
}

// absorb merges the nodes, edges and terminals of o into f. Entry and exits
// are left to the caller.
func (f *Fragment) absorb(o *Fragment) {
	f.Nodes = append(f.Nodes, o.Nodes...)
	f.Edges = append(f.Edges, o.Edges...)
	for id := range o.Terminals {
		f.Terminals[id] = true
	}
}

// exit appends an exit point unless id is already terminal.
func (f *Fragment) exit(id, label string) {
	if f.Terminals[id] {
		return
	}
	f.Exits = append(f.Exits, ExitPoint{ID: id, Label: label})
}

func (f *Fragment) exitAll(exits []ExitPoint) {
	for _, ep := range exits {
		f.exit(ep.ID, ep.Label)
	}
}

// terminate records id as wired to a terminal target and removes it from
// the exit points.
func (f *Fragment) terminate(id string) {
	f.Terminals[id] = true
	kept := f.Exits[:0]
	for _, ep := range f.Exits {
		if ep.ID != id {
			kept = append(kept, ep)
		}
	}
	f.Exits = kept
}

// drop removes the given nodes and every edge touching them.
func (f *Fragment) drop(ids map[string]bool) {
	if len(ids) == 0 {
		return
	}
	nodes := f.Nodes[:0]
	for _, n := range f.Nodes {
		if !ids[n.ID] {
			nodes = append(nodes, n)
		}
	}
	f.Nodes = nodes
	edges := f.Edges[:0]
	for _, e := range f.Edges {
		if !ids[e.From] && !ids[e.To] {
			edges = append(edges, e)
		}
	}
	f.Edges = edges
	for id := range ids {
		delete(f.Terminals, id)
	}
}

// LoopContext carries the targets of break and continue.
type LoopContext struct {
	BreakTarget    string
	ContinueTarget string
}

// FinallyContext redirects return and raise into an enclosing finally block.
type FinallyContext struct {
	Entry string
}

// flowContext is threaded by value through the recursion. Nested loops,
// switches, finally blocks and callbacks shadow it by passing a modified copy.
type flowContext struct {
	loop     *LoopContext
	labels   map[string]LoopContext
	finally  *FinallyContext
	returnTo string
	raiseTo  string
}

func (fc flowContext) returnTarget() string {
	if fc.finally != nil {
		return fc.finally.Entry
	}
	return fc.returnTo
}

func (fc flowContext) raiseTarget() string {
	if fc.finally != nil {
		return fc.finally.Entry
	}
	return fc.raiseTo
}

// breakTarget resolves break, or break label when label is set. An unknown
// label has no target.
func (fc flowContext) breakTarget(label string) string {
	if label != "" {
		return fc.labels[label].BreakTarget
	}
	if fc.loop == nil {
		return ""
	}
	return fc.loop.BreakTarget
}

func (fc flowContext) continueTarget(label string) string {
	if label != "" {
		return fc.labels[label].ContinueTarget
	}
	if fc.loop == nil {
		return ""
	}
	return fc.loop.ContinueTarget
}

func (fc flowContext) withLoop(breakTo, continueTo string) flowContext {
	fc.loop = &LoopContext{BreakTarget: breakTo, ContinueTarget: continueTo}
	return fc
}

// withLabeledLoop installs a loop context that is also reachable by name.
// The label map is copied so that outer contexts never see inner labels.
func (fc flowContext) withLabeledLoop(label, breakTo, continueTo string) flowContext {
	fc = fc.withLoop(breakTo, continueTo)
	if label == "" {
		return fc
	}
	labels := make(map[string]LoopContext, len(fc.labels)+1)
	for k, v := range fc.labels {
		labels[k] = v
	}
	labels[label] = *fc.loop
	fc.labels = labels
	return fc
}

func (fc flowContext) withFinally(entry string) flowContext {
	fc.finally = &FinallyContext{Entry: entry}
	return fc
}

// callback returns the context for a higher-order callback body: returns
// land on collect, raises keep propagating outward and loops do not leak in.
func (fc flowContext) callback(collect string) flowContext {
	return flowContext{returnTo: collect, raiseTo: fc.raiseTarget()}
}
