package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/l3aro/codeflow/pkg/cache"
	"github.com/l3aro/codeflow/pkg/cfg"
)

// Command types understood by the daemon.
const (
	CmdStatus    = "status"
	CmdGraph     = "graph"
	CmdFunctions = "functions"
	CmdStop      = "stop"
)

// Command is one newline-delimited JSON request.
type Command struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     string          `json:"id,omitempty"`
}

// Response answers the Command with the same ID.
type Response struct {
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// GraphParams asks for the flowchart of one function in Source.
type GraphParams struct {
	Source       string       `json:"source"`
	Language     string       `json:"language"`
	Position     *int         `json:"position,omitempty"`
	FunctionName string       `json:"function,omitempty"`
	Options      *cfg.Options `json:"options,omitempty"`
}

// FunctionsParams asks for the functions declared in Source.
type FunctionsParams struct {
	Source   string `json:"source"`
	Language string `json:"language"`
}

// StatusInfo is the result of a status command.
type StatusInfo struct {
	Version   string      `json:"version"`
	Status    string      `json:"status"`
	PID       int         `json:"pid"`
	StartedAt time.Time   `json:"started_at"`
	Requests  int64       `json:"requests"`
	Languages []string    `json:"languages"`
	Cache     cache.Stats `json:"cache"`
}

// NewCommand builds a command with a fresh request ID.
func NewCommand(cmdType string, params interface{}) (Command, error) {
	cmd := Command{Type: cmdType, ID: uuid.NewString()}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Command{}, fmt.Errorf("marshaling params: %w", err)
		}
		cmd.Params = data
	}
	return cmd, nil
}

// Endpoint returns the network and address for socketPath. Windows and
// relative paths use TCP on localhost.
func Endpoint(socketPath string) (network, address string) {
	if runtime.GOOS == "windows" || !strings.HasPrefix(socketPath, "/") {
		port := os.Getenv("CFLOW_TCP_PORT")
		if port == "" {
			port = DefaultTCPPort
		}
		return "tcp", "localhost:" + port
	}
	return "unix", socketPath
}

// Call sends cmd to the daemon at socketPath and decodes the result into out.
// out may be nil.
func Call(ctx context.Context, socketPath string, timeout time.Duration, cmd Command, out interface{}) error {
	network, address := Endpoint(socketPath)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return fmt.Errorf("sending command: %w", err)
	}
	if cmd.Type == CmdStop {
		return nil
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	if resp.ID != cmd.ID {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, cmd.ID)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}
