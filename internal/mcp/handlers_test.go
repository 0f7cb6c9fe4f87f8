package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/codeflow/pkg/cache"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
)

const pySource = `def classify(x):
    if x > 0:
        return "pos"
    return "neg"


def noop():
    pass
`

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func call(t *testing.T, handler func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error), arguments interface{}) (*mcplib.CallToolResult, string) {
	t.Helper()
	req := mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Arguments: arguments,
		},
	}
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res, mcplib.GetTextFromContent(res.Content[0])
}

func TestHandleFlowchart(t *testing.T) {
	h := NewHandlerSet(nil, nil)
	path := writeSource(t, "app.py", pySource)

	tests := map[string]struct {
		arguments interface{}
		isError   bool
		check     func(t *testing.T, text string)
	}{
		"invalid_arguments_format": {
			arguments: "not-a-map",
			isError:   true,
			check: func(t *testing.T, text string) {
				assert.Contains(t, text, "invalid arguments format")
			},
		},
		"path_missing": {
			arguments: map[string]interface{}{},
			isError:   true,
		},
		"path_not_exist": {
			arguments: map[string]interface{}{"path": "/non/existing/app.py"},
			isError:   true,
			check: func(t *testing.T, text string) {
				assert.Contains(t, text, "path does not exist")
			},
		},
		"unsupported_file": {
			arguments: map[string]interface{}{"path": writeSource(t, "notes.txt", "hi")},
			isError:   true,
		},
		"by_name_mermaid": {
			arguments: map[string]interface{}{"path": path, "function": "classify"},
			check: func(t *testing.T, text string) {
				assert.True(t, strings.HasPrefix(text, "flowchart TD\n"), text)
				assert.Contains(t, text, "x > 0")
			},
		},
		"by_line_json": {
			arguments: map[string]interface{}{"path": path, "line": float64(8), "format": "json"},
			check: func(t *testing.T, text string) {
				var g cfg.FlowGraph
				require.NoError(t, json.Unmarshal([]byte(text), &g))
				assert.Equal(t, "def noop()", g.Title)
			},
		},
		"inline_source_direction": {
			arguments: map[string]interface{}{
				"source":    "function f(a) { return a ? 1 : 2; }",
				"language":  "javascript",
				"direction": "LR",
			},
			check: func(t *testing.T, text string) {
				assert.True(t, strings.HasPrefix(text, "flowchart LR\n"), text)
			},
		},
		"inline_source_without_language": {
			arguments: map[string]interface{}{"source": "def f(): pass"},
			isError:   true,
		},
		"bad_format": {
			arguments: map[string]interface{}{"path": path, "format": "svg"},
			isError:   true,
		},
		"line_out_of_range": {
			arguments: map[string]interface{}{"path": path, "line": float64(500)},
			isError:   true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res, text := call(t, h.HandleFlowchart, tt.arguments)
			assert.Equal(t, tt.isError, res.IsError, text)
			if tt.check != nil {
				tt.check(t, text)
			}
		})
	}
}

func TestHandleFlowchartMessageGraph(t *testing.T) {
	h := NewHandlerSet(nil, nil)
	path := writeSource(t, "empty.py", "x = 1\n")

	res, text := call(t, h.HandleFlowchart, map[string]interface{}{"path": path, "format": "text"})
	assert.False(t, res.IsError)
	assert.Contains(t, text, flowchart.MsgNoFunctions)
}

func TestHandleFlowchartUsesCache(t *testing.T) {
	c := cache.New(cache.Options{MaxSize: 4})
	h := NewHandlerSet(nil, flowchart.NewGenerator(c))
	path := writeSource(t, "app.py", pySource)

	args := map[string]interface{}{"path": path, "function": "classify"}
	call(t, h.HandleFlowchart, args)
	call(t, h.HandleFlowchart, args)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Length)
	assert.Equal(t, int64(1), stats.HitCount)
}

func TestHandleListFunctions(t *testing.T) {
	h := NewHandlerSet(nil, nil)
	path := writeSource(t, "app.py", pySource)

	res, text := call(t, h.HandleListFunctions, map[string]interface{}{"path": path})
	require.False(t, res.IsError, text)

	var result struct {
		Language  string `json:"language"`
		Count     int    `json:"count"`
		Functions []struct {
			Name string `json:"name"`
			Line int    `json:"line"`
		} `json:"functions"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, "python", result.Language)
	require.Equal(t, 2, result.Count)
	assert.Equal(t, "classify", result.Functions[0].Name)
	assert.Equal(t, 7, result.Functions[1].Line)

	res, _ = call(t, h.HandleListFunctions, map[string]interface{}{"source": "x", "language": "cobol"})
	assert.True(t, res.IsError)
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer("test", NewHandlerSet(nil, nil))
	tools := s.ListTools()
	assert.Contains(t, tools, "flowchart")
	assert.Contains(t, tools, "list_functions")
}
