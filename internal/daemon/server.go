package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/l3aro/codeflow/internal/log"
	"github.com/l3aro/codeflow/pkg/cfg"
	"github.com/l3aro/codeflow/pkg/flowchart"
	"github.com/l3aro/codeflow/pkg/lang"
)

// idleTimeout closes connections that send nothing for this long.
const idleTimeout = 30 * time.Second

// ServerOptions configures a Server.
type ServerOptions struct {
	Version          string
	Options          cfg.Options
	MaxFunctionBytes int
	Logger           log.Logger
}

// Server answers flowchart requests over a socket. Every request gets its
// own build; only the generator's cache is shared.
type Server struct {
	gen       *flowchart.Generator
	opts      ServerOptions
	startedAt time.Time
	requests  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer returns a Server using gen for graph generation.
func NewServer(gen *flowchart.Generator, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{gen: gen, opts: opts, startedAt: time.Now(), ctx: ctx, cancel: cancel}
}

// Listen opens the listener for socketPath, replacing a stale Unix socket.
func Listen(socketPath string) (net.Listener, error) {
	network, address := Endpoint(socketPath)
	if network == "unix" {
		if err := os.Remove(address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing existing socket: %w", err)
		}
	}
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	if network == "unix" {
		if err := os.Chmod(address, 0700); err != nil {
			l.Close()
			return nil, fmt.Errorf("setting socket permissions: %w", err)
		}
	}
	return l, nil
}

// Serve accepts connections until ctx is done, Stop is called or a stop
// command arrives. It closes l before returning.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.cancel()
		l.Close()
	}()

	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if tempDelay == 0 {
				tempDelay = time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			s.opts.Logger.Warn("accept failed", "err", err, "retry", tempDelay)
			select {
			case <-time.After(tempDelay):
				continue
			case <-s.ctx.Done():
				return nil
			}
		}
		tempDelay = 0
		go s.handleConnection(conn)
	}
}

// Stop makes Serve return.
func (s *Server) Stop() {
	s.cancel()
}

// Done is closed once the server is stopping.
func (s *Server) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		if s.ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		var cmd Command
		if err := decoder.Decode(&cmd); err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.opts.Logger.Debug("connection closed", "err", err)
			}
			return
		}

		resp := s.handleCommand(cmd)
		if cmd.Type == CmdStop {
			return
		}
		if err := encoder.Encode(resp); err != nil {
			s.opts.Logger.Warn("encode failed", "err", err)
			return
		}
	}
}

func (s *Server) handleCommand(cmd Command) Response {
	s.requests.Add(1)
	start := time.Now()
	defer func() {
		s.opts.Logger.Debug("handled command", "type", cmd.Type, "id", cmd.ID, "elapsed", time.Since(start))
	}()

	switch cmd.Type {
	case CmdStatus:
		return s.reply(cmd, s.status())
	case CmdGraph:
		var p GraphParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return Response{ID: cmd.ID, Error: fmt.Sprintf("invalid params: %v", err)}
		}
		return s.reply(cmd, s.graph(p))
	case CmdFunctions:
		var p FunctionsParams
		if err := json.Unmarshal(cmd.Params, &p); err != nil {
			return Response{ID: cmd.ID, Error: fmt.Sprintf("invalid params: %v", err)}
		}
		fns, err := flowchart.ListFunctions(s.ctx, p.Language, []byte(p.Source))
		if err != nil {
			return Response{ID: cmd.ID, Error: err.Error()}
		}
		return s.reply(cmd, fns)
	case CmdStop:
		s.opts.Logger.Info("stop requested", "id", cmd.ID)
		s.Stop()
		return Response{ID: cmd.ID, Type: CmdStop}
	default:
		return Response{ID: cmd.ID, Error: fmt.Sprintf("unknown command: %s", cmd.Type)}
	}
}

func (s *Server) graph(p GraphParams) *cfg.FlowGraph {
	opts := s.opts.Options
	if p.Options != nil {
		opts = *p.Options
	}
	g := s.gen.Generate(s.ctx, flowchart.Request{
		Source:           []byte(p.Source),
		Language:         p.Language,
		Position:         p.Position,
		FunctionName:     p.FunctionName,
		Options:          &opts,
		MaxFunctionBytes: s.opts.MaxFunctionBytes,
	})
	if g.Degenerate {
		s.opts.Logger.Debug("message graph", "language", p.Language, "message", g.Nodes[0].Label)
	}
	return g
}

func (s *Server) status() StatusInfo {
	info := StatusInfo{
		Version:   s.opts.Version,
		Status:    "running",
		PID:       os.Getpid(),
		StartedAt: s.startedAt,
		Requests:  s.requests.Load(),
		Languages: lang.Names(),
	}
	if c := s.gen.Cache(); c != nil {
		info.Cache = c.Stats()
	}
	return info
}

func (s *Server) reply(cmd Command, v interface{}) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{ID: cmd.ID, Error: fmt.Sprintf("marshal error: %v", err)}
	}
	return Response{ID: cmd.ID, Type: cmd.Type, Result: data}
}
