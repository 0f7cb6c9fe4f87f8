// Package render writes flow graphs as Mermaid, Graphviz DOT, JSON or plain
// text.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/l3aro/codeflow/pkg/cfg"
)

// Format is an output format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
	FormatJSON    Format = "json"
	FormatText    Format = "text"
)

// Formats lists the supported formats.
var Formats = []Format{FormatMermaid, FormatDOT, FormatJSON, FormatText}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (use mermaid, dot, json or text)", s)
}

// Extension returns the file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatMermaid:
		return ".mmd"
	case FormatDOT:
		return ".dot"
	case FormatJSON:
		return ".json"
	}
	return ".txt"
}

// Options tunes rendering.
type Options struct {
	// Direction is the Mermaid/DOT layout direction: TD, LR, BT or RL.
	Direction string
	// NoStyle omits Mermaid class definitions.
	NoStyle bool
}

func (o Options) direction() string {
	switch d := strings.ToUpper(o.Direction); d {
	case "TD", "TB", "LR", "BT", "RL":
		return d
	}
	return "TD"
}

// Write renders g to w in format f.
func Write(w io.Writer, g *cfg.FlowGraph, f Format, opts Options) error {
	switch f {
	case FormatMermaid:
		_, err := io.WriteString(w, Mermaid(g, opts))
		return err
	case FormatDOT:
		_, err := io.WriteString(w, DOT(g, opts))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	case FormatText:
		_, err := io.WriteString(w, Text(g))
		return err
	}
	return fmt.Errorf("unknown format %q", f)
}

// Text renders a human-readable listing of the graph.
func Text(g *cfg.FlowGraph) string {
	var sb strings.Builder
	title := g.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(&sb, "=== Flowchart: %s ===\n", title)
	if g.Language != "" {
		fmt.Fprintf(&sb, "Language: %s\n", g.Language)
	}
	if !g.Degenerate {
		fmt.Fprintf(&sb, "Cyclomatic Complexity: %d\n", g.Complexity)
	}
	if g.Truncated {
		sb.WriteString("Truncated: yes\n")
	}

	fmt.Fprintf(&sb, "\nNodes (%d):\n", len(g.Nodes))
	for _, n := range g.Nodes {
		fmt.Fprintf(&sb, "  %-5s %-9s %s\n", n.ID, n.Kind, n.Label)
	}
	fmt.Fprintf(&sb, "\nEdges (%d):\n", len(g.Edges))
	for _, e := range g.Edges {
		if e.Label != "" {
			fmt.Fprintf(&sb, "  %s --%s--> %s\n", e.From, e.Label, e.To)
		} else {
			fmt.Fprintf(&sb, "  %s --> %s\n", e.From, e.To)
		}
	}
	return sb.String()
}

// kindsIn returns the node kinds present in g, sorted.
func kindsIn(g *cfg.FlowGraph) []cfg.NodeKind {
	seen := map[cfg.NodeKind]bool{}
	var kinds []cfg.NodeKind
	for _, n := range g.Nodes {
		if n.Kind != "" && !seen[n.Kind] {
			seen[n.Kind] = true
			kinds = append(kinds, n.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
