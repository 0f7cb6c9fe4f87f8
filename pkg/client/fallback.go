package client

import (
	"context"

	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/lang"
)

// Executor builds graphs in-process when the daemon is unavailable.
type Executor struct {
	gen              *flowchart.Generator
	opts             cfg.Options
	maxFunctionBytes int
}

// NewExecutor returns an Executor without a cache. Each CLI invocation
// builds a graph once, so caching would not pay off.
func NewExecutor(opts cfg.Options, maxFunctionBytes int) *Executor {
	return &Executor{gen: flowchart.NewGenerator(nil), opts: opts, maxFunctionBytes: maxFunctionBytes}
}

// Graph builds the flowchart locally.
func (e *Executor) Graph(ctx context.Context, params GraphParams) *cfg.FlowGraph {
	opts := e.opts
	if params.Options != nil {
		opts = *params.Options
	}
	return e.gen.Generate(ctx, flowchart.Request{
		Source:           []byte(params.Source),
		Language:         params.Language,
		Position:         params.Position,
		FunctionName:     params.FunctionName,
		Options:          &opts,
		MaxFunctionBytes: e.maxFunctionBytes,
	})
}

// Functions lists functions locally.
func (e *Executor) Functions(ctx context.Context, language, source string) ([]lang.FunctionInfo, error) {
	return flowchart.ListFunctions(ctx, language, []byte(source))
}
