package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/l3aro/codeflow/internal/daemon"
	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/lang"
)

const defaultDaemonCacheTTL = 5 * time.Second

// ErrDaemonNotAvailable is returned when an operation needs the daemon and
// none answers.
var ErrDaemonNotAvailable = errors.New("daemon not available")

// Router sends requests to the daemon when one answers and builds them
// locally otherwise.
type Router struct {
	client     *Client
	local      *Executor
	logger     log.Logger
	useDaemon  bool
	autoDetect bool

	mu           sync.Mutex
	cachedResult *bool
	cacheTime    time.Time
	cacheTTL     time.Duration
}

// RouterOption is a router option
type RouterOption func(*Router)

// WithDaemon requires the daemon; requests fail instead of falling back.
func WithDaemon() RouterOption {
	return func(r *Router) {
		r.useDaemon = true
		r.autoDetect = false
	}
}

// WithoutDaemon forces local execution
func WithoutDaemon() RouterOption {
	return func(r *Router) {
		r.useDaemon = false
		r.autoDetect = false
	}
}

// WithAutoDetect uses the daemon when it answers a ping
func WithAutoDetect() RouterOption {
	return func(r *Router) {
		r.autoDetect = true
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l log.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter creates a router for the daemon behind c with local as fallback.
func NewRouter(c *Client, local *Executor, opts ...RouterOption) *Router {
	r := &Router{
		client:     c,
		local:      local,
		logger:     log.Default(),
		autoDetect: true,
		cacheTTL:   defaultDaemonCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldUseDaemon reports whether requests go to the daemon. Auto-detection
// results are cached for a few seconds.
func (r *Router) ShouldUseDaemon(ctx context.Context) bool {
	if !r.autoDetect {
		return r.useDaemon
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cachedResult != nil && time.Since(r.cacheTime) < r.cacheTTL {
		return *r.cachedResult
	}
	_, err := daemon.Ping(ctx, r.client.SocketPath())
	result := err == nil
	r.cachedResult = &result
	r.cacheTime = time.Now()
	return result
}

func (r *Router) markUnavailable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	no := false
	r.cachedResult = &no
	r.cacheTime = time.Now()
}

// Graph returns the flowchart from the daemon or builds it locally.
func (r *Router) Graph(ctx context.Context, params GraphParams) (*cfg.FlowGraph, error) {
	if r.ShouldUseDaemon(ctx) {
		g, err := r.client.Graph(ctx, params)
		if err == nil {
			return g, nil
		}
		if !r.autoDetect {
			return nil, err
		}
		r.logger.Warn("daemon request failed, building locally", "err", err)
		r.markUnavailable()
	}
	if r.local == nil {
		return nil, ErrDaemonNotAvailable
	}
	return r.local.Graph(ctx, params), nil
}

// Functions lists functions through the daemon or locally.
func (r *Router) Functions(ctx context.Context, language, source string) ([]lang.FunctionInfo, error) {
	if r.ShouldUseDaemon(ctx) {
		fns, err := r.client.Functions(ctx, language, source)
		if err == nil || !r.autoDetect {
			return fns, err
		}
		r.logger.Warn("daemon request failed, listing locally", "err", err)
		r.markUnavailable()
	}
	if r.local == nil {
		return nil, ErrDaemonNotAvailable
	}
	return r.local.Functions(ctx, language, source)
}

// Status gets daemon status
func (r *Router) Status(ctx context.Context) (*daemon.StatusInfo, error) {
	if !r.ShouldUseDaemon(ctx) {
		return nil, ErrDaemonNotAvailable
	}
	return r.client.Status(ctx)
}
