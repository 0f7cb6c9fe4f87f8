// Package flowchart turns a function in Python or TypeScript/JavaScript
// source into a FlowGraph. It ties together parsing, target location,
// lowering and graph construction and never fails on source content: every
// problem with the input becomes a one-node message graph.
package flowchart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/l3aro/codeflow/pkg/cache"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/lang"
)

// ErrUnsupportedLanguage is returned by the file helpers for unknown
// languages or extensions.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Messages shown by degenerate graphs.
const (
	MsgNoTarget      = "Place the cursor inside a function to see its flowchart"
	MsgNoFunctions   = "No functions found"
	MsgParseFailed   = "Unable to parse source"
	MsgSyntaxError   = "Syntax error in function"
	MsgTooLong       = "Function too long to display"
	MsgInternalError = "Unable to build flowchart"
)

// Request describes a flowchart to build.
type Request struct {
	Source []byte
	// Language is a name or alias accepted by lang.Lookup.
	Language string
	// Position is a byte offset inside the target. It wins over FunctionName.
	Position *int
	// FunctionName selects a function by bound or qualified name.
	FunctionName string
	// Options overrides cfg.DefaultOptions when set.
	Options *cfg.Options
	// MaxFunctionBytes rejects targets larger than this. 0 means no limit.
	MaxFunctionBytes int
}

func (r Request) options() cfg.Options {
	if r.Options != nil {
		return *r.Options
	}
	return cfg.DefaultOptions()
}

// Generate builds the flow graph for req.
func Generate(ctx context.Context, req Request) (g *cfg.FlowGraph) {
	defer func() {
		if r := recover(); r != nil {
			g = cfg.Message(fmt.Sprintf("%s: %v", MsgInternalError, r))
			g.Language = req.Language
		}
	}()

	l, ok := lang.Lookup(req.Language)
	if !ok {
		return cfg.Message(fmt.Sprintf("Unsupported language %q", req.Language))
	}
	g = generate(ctx, l, req)
	g.Language = l.Name()
	return g
}

func generate(ctx context.Context, l lang.Language, req Request) *cfg.FlowGraph {
	if len(req.Source) == 0 {
		return cfg.Message(MsgNoTarget)
	}
	tree, err := lang.Parse(ctx, l, req.Source)
	if err != nil {
		return cfg.Message(MsgParseFailed)
	}
	defer tree.Close()

	t, ok := lang.Locate(l, tree.RootNode(), req.Source, lang.Query{Offset: req.Position, Name: req.FunctionName})
	if !ok {
		switch {
		case req.FunctionName != "" && req.Position == nil:
			return cfg.Message(fmt.Sprintf("Function %q not found", req.FunctionName))
		case req.Position == nil:
			return cfg.Message(MsgNoFunctions)
		}
		return cfg.Message(MsgNoTarget)
	}
	if line, col, bad := lang.SyntaxErrorAt(t.Node); bad {
		return cfg.Message(fmt.Sprintf("%s at line %d:%d", MsgSyntaxError, line, col))
	}
	if req.MaxFunctionBytes > 0 && int(t.Node.EndByte()-t.Node.StartByte()) > req.MaxFunctionBytes {
		return cfg.Message(MsgTooLong)
	}
	return cfg.Build(lang.Lower(l, t, req.Source), req.options())
}

// GenerateFile reads path and builds the graph selected by q. The language is
// taken from the file extension. maxFunctionBytes has the meaning of
// Request.MaxFunctionBytes.
func GenerateFile(ctx context.Context, path string, q lang.Query, opts *cfg.Options, maxFunctionBytes int) (*cfg.FlowGraph, error) {
	l, ok := lang.ForFile(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedLanguage)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Generate(ctx, Request{
		Source:           src,
		Language:         l.Name(),
		Position:         q.Offset,
		FunctionName:     q.Name,
		Options:          opts,
		MaxFunctionBytes: maxFunctionBytes,
	}), nil
}

// ListFunctions returns the named functions in src.
func ListFunctions(ctx context.Context, language string, src []byte) ([]lang.FunctionInfo, error) {
	l, ok := lang.Lookup(language)
	if !ok {
		return nil, fmt.Errorf("%q: %w", language, ErrUnsupportedLanguage)
	}
	tree, err := lang.Parse(ctx, l, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return lang.Functions(l, tree.RootNode(), src), nil
}

// ListFile is ListFunctions for a file on disk.
func ListFile(ctx context.Context, path string) ([]lang.FunctionInfo, error) {
	l, ok := lang.ForFile(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedLanguage)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ListFunctions(ctx, l.Name(), src)
}

// Generator builds graphs through a cache. Generated graphs are shared
// between callers and must not be modified.
type Generator struct {
	cache *cache.LRUCache
}

// NewGenerator returns a Generator backed by c. A nil cache disables caching.
func NewGenerator(c *cache.LRUCache) *Generator {
	return &Generator{cache: c}
}

// Cache returns the underlying cache, which may be nil.
func (g *Generator) Cache() *cache.LRUCache {
	return g.cache
}

// Generate is the cached form of the package-level Generate. Message graphs
// are not cached.
func (g *Generator) Generate(ctx context.Context, req Request) *cfg.FlowGraph {
	if g.cache == nil {
		return Generate(ctx, req)
	}
	key := requestKey(req)
	if fg, ok := g.cache.Get(key); ok {
		return fg
	}
	fg := Generate(ctx, req)
	if !fg.Degenerate {
		g.cache.Set(key, fg)
	}
	return fg
}

func requestKey(req Request) string {
	target := "first"
	switch {
	case req.Position != nil:
		target = "@" + strconv.Itoa(*req.Position)
	case req.FunctionName != "":
		target = "#" + req.FunctionName
	}
	o := req.options()
	opts := fmt.Sprintf("%d/%d/%d/%t/%t/%d", o.MaxNodes, o.MaxDepth, o.MaxLabelLength,
		o.ExpandHOF, o.ExpandPromises, req.MaxFunctionBytes)
	return cache.Key(req.Language, string(req.Source), target, opts)
}
