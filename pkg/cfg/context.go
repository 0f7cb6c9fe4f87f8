package cfg

import (
	"fmt"
	"strings"
)

// TruncatedLabel is the placeholder shown when a build hits a ceiling.
const TruncatedLabel = "(truncated)"

// Options tunes a single build.
type Options struct {
	// MaxNodes caps the number of nodes a build may create. Zero disables.
	MaxNodes int `json:"max_nodes"`
	// MaxDepth caps statement nesting. Zero disables.
	MaxDepth int `json:"max_depth"`
	// MaxLabelLength shortens node labels. Zero keeps them whole.
	MaxLabelLength int  `json:"max_label_length"`
	ExpandHOF      bool `json:"expand_hof"`
	ExpandPromises bool `json:"expand_promises"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxNodes:       500,
		MaxDepth:       64,
		MaxLabelLength: 80,
		ExpandHOF:      true,
		ExpandPromises: true,
	}
}

// BuildContext holds the mutable state of exactly one build. A fresh context
// is created by Build, so concurrent builds share nothing.
type BuildContext struct {
	opts      Options
	nextID    int
	depth     int
	locations []LocationEntry
	truncated bool
}

// NewBuildContext returns a context with counters at zero.
func NewBuildContext(opts Options) *BuildContext {
	return &BuildContext{opts: opts}
}

// Options returns the options of the build.
func (c *BuildContext) Options() Options { return c.opts }

// Truncated reports whether a ceiling was hit.
func (c *BuildContext) Truncated() bool { return c.truncated }

// NodeCount returns the number of ids handed out so far.
func (c *BuildContext) NodeCount() int { return c.nextID }

// Locations returns the location entries recorded so far.
func (c *BuildContext) Locations() []LocationEntry { return c.locations }

// reserve hands out an id without creating the node yet. Used for targets
// that must be known before the statements that jump to them are processed.
func (c *BuildContext) reserve() string {
	id := fmt.Sprintf("n%d", c.nextID)
	c.nextID++
	return id
}

// node creates a node with a fresh id and records its span.
func (c *BuildContext) node(label string, shape Shape, kind NodeKind, span Span) Node {
	return c.nodeWithID(c.reserve(), label, shape, kind, span)
}

func (c *BuildContext) nodeWithID(id, label string, shape Shape, kind NodeKind, span Span) Node {
	if span.Valid() {
		c.locations = append(c.locations, LocationEntry{Start: span.Start, End: span.End, NodeID: id})
	}
	return Node{ID: id, Label: c.label(label), Shape: shape, Kind: kind}
}

// label collapses whitespace and shortens the text to MaxLabelLength runes.
func (c *BuildContext) label(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	max := c.opts.MaxLabelLength
	if max <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// exhausted reports whether the next statement must be replaced by the
// truncation placeholder.
func (c *BuildContext) exhausted() bool {
	if c.truncated {
		return true
	}
	if c.opts.MaxNodes > 0 && c.nextID >= c.opts.MaxNodes {
		return true
	}
	return c.opts.MaxDepth > 0 && c.depth > c.opts.MaxDepth
}
