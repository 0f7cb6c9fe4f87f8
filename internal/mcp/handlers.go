package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/l3aro/codeflow/internal/config"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/lang"
	"github.com/l3aro/codeflow/pkg/render"
)

// HandlerSet serves tool calls with a shared generator.
type HandlerSet struct {
	gen              *flowchart.Generator
	opts             cfg.Options
	maxFunctionBytes int
	format           string
	direction        string
}

// NewHandlerSet creates handlers configured from conf. gen may carry a
// cache shared across calls.
func NewHandlerSet(conf *config.Config, gen *flowchart.Generator) *HandlerSet {
	if conf == nil {
		conf = config.DefaultConfig()
	}
	if gen == nil {
		gen = flowchart.NewGenerator(nil)
	}
	return &HandlerSet{
		gen:              gen,
		opts:             conf.BuildOptions(),
		maxFunctionBytes: conf.MaxFunctionBytes,
		format:           conf.Format,
		direction:        conf.Direction,
	}
}

type input struct {
	source   []byte
	language string
	origin   string
}

// readInput resolves the path or inline source arguments.
func readInput(args map[string]interface{}) (*input, *mcp.CallToolResult) {
	if src, ok := args["source"].(string); ok && src != "" {
		language, _ := args["language"].(string)
		if language == "" {
			return nil, mcp.NewToolResultError("language is required with inline source")
		}
		if _, ok := lang.Lookup(language); !ok {
			return nil, mcp.NewToolResultError(fmt.Sprintf("unsupported language: %s", language))
		}
		return &input{source: []byte(src), language: language, origin: "<source>"}, nil
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, mcp.NewToolResultError("path or source is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("path does not exist: %s", path))
	}
	l, ok := lang.ForFile(path)
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("unsupported file type: %s", path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to read %s: %v", path, err))
	}
	return &input{source: data, language: l.Name(), origin: path}, nil
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// HandleFlowchart renders the flowchart of one function.
func (h *HandlerSet) HandleFlowchart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	in, errRes := readInput(args)
	if errRes != nil {
		return errRes, nil
	}

	format := h.format
	if f, ok := args["format"].(string); ok && f != "" {
		format = f
	}
	outFormat, err := render.ParseFormat(format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction := h.direction
	if d, ok := args["direction"].(string); ok && d != "" {
		direction = d
	}

	req := flowchart.Request{
		Source:           in.source,
		Language:         in.language,
		Options:          &h.opts,
		MaxFunctionBytes: h.maxFunctionBytes,
	}
	req.FunctionName, _ = args["function"].(string)
	if off, ok := intArg(args, "offset"); ok {
		req.Position = &off
	} else if line, ok := intArg(args, "line"); ok {
		col, ok := intArg(args, "column")
		if !ok {
			col = 1
		}
		off, err := lang.Offset(in.source, line, col)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Position = &off
	}

	g := h.gen.Generate(ctx, req)

	var sb strings.Builder
	if err := render.Write(&sb, g, outFormat, render.Options{Direction: direction}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to render graph: %v", err)), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListFunctions lists the functions in a file or inline source.
func (h *HandlerSet) HandleListFunctions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments format"), nil
	}

	in, errRes := readInput(args)
	if errRes != nil {
		return errRes, nil
	}

	fns, err := flowchart.ListFunctions(ctx, in.language, in.source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing functions failed: %v", err)), nil
	}

	result := map[string]interface{}{
		"file":      in.origin,
		"language":  in.language,
		"functions": fns,
		"count":     len(fns),
	}
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}
