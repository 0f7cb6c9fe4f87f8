// Package client talks to a running cflowd over its socket and falls back to
// building graphs in-process when no daemon answers.
package client

import (
	"context"
	"time"

	"github.com/l3aro/codeflow/internal/daemon"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/lang"
)

const (
	// DefaultSocketPath is the default Unix socket path
	DefaultSocketPath = "/tmp/cflow.sock"
	// DefaultTimeout bounds a single request
	DefaultTimeout = 5 * time.Second
)

// Client is a daemon client
type Client struct {
	socketPath string
	timeout    time.Duration
}

// Option is a client option
type Option func(*Client)

// WithSocketPath sets the socket path
func WithSocketPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.socketPath = path
		}
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// New creates a new daemon client
func New(opts ...Option) *Client {
	c := &Client{
		socketPath: DefaultSocketPath,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

func (c *Client) send(ctx context.Context, cmdType string, params, out interface{}) error {
	cmd, err := daemon.NewCommand(cmdType, params)
	if err != nil {
		return err
	}
	return daemon.Call(ctx, c.socketPath, c.timeout, cmd, out)
}

// GraphParams selects the function to chart.
type GraphParams = daemon.GraphParams

// Graph asks the daemon for a flowchart.
func (c *Client) Graph(ctx context.Context, params GraphParams) (*cfg.FlowGraph, error) {
	var g cfg.FlowGraph
	if err := c.send(ctx, daemon.CmdGraph, params, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Functions asks the daemon for the functions in a source file.
func (c *Client) Functions(ctx context.Context, language, source string) ([]lang.FunctionInfo, error) {
	var fns []lang.FunctionInfo
	if err := c.send(ctx, daemon.CmdFunctions, daemon.FunctionsParams{Source: source, Language: language}, &fns); err != nil {
		return nil, err
	}
	return fns, nil
}

// Status returns the daemon's own view of its state.
func (c *Client) Status(ctx context.Context) (*daemon.StatusInfo, error) {
	var info daemon.StatusInfo
	if err := c.send(ctx, daemon.CmdStatus, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
