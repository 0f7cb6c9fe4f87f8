package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// DOT renders g in Graphviz format.
func DOT(g *cfg.FlowGraph, opts Options) string {
	rankdir := opts.direction()
	if rankdir == "TD" {
		rankdir = "TB"
	}

	var sb strings.Builder
	sb.WriteString("digraph flowchart {\n")
	fmt.Fprintf(&sb, "  rankdir=%s;\n", rankdir)
	if g.Title != "" {
		fmt.Fprintf(&sb, "  label=%s;\n  labelloc=t;\n", strconv.Quote(g.Title))
	}
	sb.WriteString("  node [fontname=\"Helvetica\"];\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(&sb, "  %s [label=%s, shape=%s];\n", n.ID, strconv.Quote(n.Label), dotShape(n.Shape))
	}
	for _, e := range g.Edges {
		if e.Label != "" {
			fmt.Fprintf(&sb, "  %s -> %s [label=%s];\n", e.From, e.To, strconv.Quote(e.Label))
		} else {
			fmt.Fprintf(&sb, "  %s -> %s;\n", e.From, e.To)
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func dotShape(s cfg.Shape) string {
	switch s {
	case cfg.ShapeDiamond:
		return "diamond"
	case cfg.ShapeRound:
		return "ellipse"
	case cfg.ShapeStadium:
		return "oval"
	}
	return "box"
}
