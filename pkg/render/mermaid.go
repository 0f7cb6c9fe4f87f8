package render

import (
	"fmt"
	"strings"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// kindStyles are the Mermaid class definitions per node kind.
var kindStyles = map[cfg.NodeKind]string{
	cfg.KindEntry:     "fill:#d4edda,stroke:#28a745",
	cfg.KindExit:      "fill:#d4edda,stroke:#28a745",
	cfg.KindDecision:  "fill:#fff3cd,stroke:#d39e00",
	cfg.KindLoop:      "fill:#fff3cd,stroke:#d39e00",
	cfg.KindLoopEnd:   "fill:#f8f9fa,stroke:#6c757d",
	cfg.KindException: "fill:#f8d7da,stroke:#c82333",
	cfg.KindRaise:     "fill:#f8d7da,stroke:#c82333",
	cfg.KindReturn:    "fill:#cce5ff,stroke:#004085",
	cfg.KindBreak:     "fill:#e2e3e5,stroke:#383d41",
	cfg.KindContinue:  "fill:#e2e3e5,stroke:#383d41",
	cfg.KindAsync:     "fill:#e8daef,stroke:#6c3483",
	cfg.KindHOF:       "fill:#d1ecf1,stroke:#0c5460",
	cfg.KindTruncated: "fill:#f8f9fa,stroke:#6c757d,stroke-dasharray:4",
	cfg.KindInfo:      "fill:#f8f9fa,stroke:#6c757d",
}

// Mermaid renders g as a Mermaid flowchart.
func Mermaid(g *cfg.FlowGraph, opts Options) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "flowchart %s\n", opts.direction())

	for _, n := range g.Nodes {
		left, right := mermaidShape(n.Shape)
		fmt.Fprintf(&sb, "  %s%s\"%s\"%s\n", n.ID, left, mermaidEscape(n.Label), right)
	}
	for _, e := range g.Edges {
		if e.Label != "" {
			fmt.Fprintf(&sb, "  %s -->|\"%s\"| %s\n", e.From, mermaidEscape(e.Label), e.To)
		} else {
			fmt.Fprintf(&sb, "  %s --> %s\n", e.From, e.To)
		}
	}

	if opts.NoStyle {
		return sb.String()
	}
	for _, kind := range kindsIn(g) {
		style, ok := kindStyles[kind]
		if !ok {
			continue
		}
		var ids []string
		for _, n := range g.Nodes {
			if n.Kind == kind {
				ids = append(ids, n.ID)
			}
		}
		class := mermaidClass(kind)
		fmt.Fprintf(&sb, "  classDef %s %s\n", class, style)
		fmt.Fprintf(&sb, "  class %s %s\n", strings.Join(ids, ","), class)
	}
	return sb.String()
}

func mermaidShape(s cfg.Shape) (string, string) {
	switch s {
	case cfg.ShapeDiamond:
		return "{", "}"
	case cfg.ShapeRound:
		return "(", ")"
	case cfg.ShapeStadium:
		return "([", "])"
	}
	return "[", "]"
}

// mermaidClass turns a kind into a valid class name ("loop-end" -> "loopEnd").
func mermaidClass(k cfg.NodeKind) string {
	parts := strings.Split(string(k), "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

var mermaidReplacer = strings.NewReplacer(
	`"`, "#quot;",
	"<", "#lt;",
	">", "#gt;",
	"\n", " ",
)

// mermaidEscape makes a label safe inside a quoted Mermaid string.
func mermaidEscape(s string) string {
	return mermaidReplacer.Replace(s)
}
