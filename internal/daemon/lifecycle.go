// Package daemon runs cflowd, the long-lived flowchart server editors talk
// to, and manages its lifecycle through a PID file, a status file and a
// socket ping.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/l3aro/codeflow/internal/config"
)

const (
	// PIDFileName is the name of the PID file
	PIDFileName = "cflowd.pid"
	// StatusFileName is the name of the status file
	StatusFileName = "cflowd.status"
	// DefaultTCPPort is the TCP port used where Unix sockets are unavailable
	DefaultTCPPort = "9848"
	// ReadyTimeout is how long Start waits for the daemon to answer
	ReadyTimeout = 10 * time.Second
	// ShutdownTimeout is how long Stop waits for a graceful exit
	ShutdownTimeout = 5 * time.Second
	// pingTimeout bounds a single status ping
	pingTimeout = 2 * time.Second
)

// Dir returns the directory holding the daemon state files. CFLOW_DAEMON_DIR
// overrides the default under the global config directory.
func Dir() string {
	if dir := os.Getenv("CFLOW_DAEMON_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(config.Dir(), "run")
}

// PIDFile returns the path to the PID file
func PIDFile() string {
	return filepath.Join(Dir(), PIDFileName)
}

// StatusFile returns the path to the status file
func StatusFile() string {
	return filepath.Join(Dir(), StatusFileName)
}

func ensureDir() error {
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return fmt.Errorf("creating daemon directory: %w", err)
	}
	return nil
}

// WritePID writes the PID to the PID file
func WritePID(pid int) error {
	if err := ensureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(PIDFile(), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	return nil
}

// ReadPID reads the PID from the PID file
func ReadPID() (int, error) {
	data, err := os.ReadFile(PIDFile())
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing PID: %w", err)
	}
	return pid, nil
}

// RemovePID removes the PID file
func RemovePID() error {
	if err := os.Remove(PIDFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing PID file: %w", err)
	}
	return nil
}

// DaemonStatus is what the CLI knows about the daemon process.
type DaemonStatus struct {
	Running    bool        `json:"running"`
	PID        int         `json:"pid,omitempty"`
	Ready      bool        `json:"ready"`
	SocketPath string      `json:"socket_path,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	Error      string      `json:"error,omitempty"`
	Info       *StatusInfo `json:"info,omitempty"`
}

// WriteStatus writes the status to the status file
func WriteStatus(status *DaemonStatus) error {
	if err := ensureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	if err := os.WriteFile(StatusFile(), data, 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}

// ReadStatus reads the status from the status file
func ReadStatus() (*DaemonStatus, error) {
	data, err := os.ReadFile(StatusFile())
	if err != nil {
		return nil, fmt.Errorf("reading status file: %w", err)
	}
	var status DaemonStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}
	return &status, nil
}

// RemoveStatus removes the status file
func RemoveStatus() error {
	if err := os.Remove(StatusFile()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing status file: %w", err)
	}
	return nil
}

func cleanup() {
	RemovePID()
	RemoveStatus()
}

// IsProcessRunning checks if a process with the given PID is running
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes the process.
	return process.Signal(syscall.Signal(0)) == nil
}

// Ping asks the daemon at socketPath for its status.
func Ping(ctx context.Context, socketPath string) (*StatusInfo, error) {
	cmd, err := NewCommand(CmdStatus, nil)
	if err != nil {
		return nil, err
	}
	var info StatusInfo
	if err := Call(ctx, socketPath, pingTimeout, cmd, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CheckStatus combines the PID file, the process table and a ping. Stale
// state files are removed.
func CheckStatus(socketPath string) *DaemonStatus {
	pid, err := ReadPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &DaemonStatus{SocketPath: socketPath}
		}
		return &DaemonStatus{SocketPath: socketPath, Error: fmt.Sprintf("failed to read PID: %v", err)}
	}

	if !IsProcessRunning(pid) {
		cleanup()
		return &DaemonStatus{SocketPath: socketPath}
	}

	status := &DaemonStatus{Running: true, PID: pid, SocketPath: socketPath}
	if saved, err := ReadStatus(); err == nil {
		status.StartedAt = saved.StartedAt
	}

	info, err := Ping(context.Background(), socketPath)
	if err != nil {
		status.Error = fmt.Sprintf("daemon not responding: %v", err)
		return status
	}
	status.Ready = true
	status.Info = info
	if status.StartedAt.IsZero() {
		status.StartedAt = info.StartedAt
	}
	return status
}

// IsRunning reports whether a daemon is up and answering on socketPath.
func IsRunning(socketPath string) bool {
	s := CheckStatus(socketPath)
	return s.Running && s.Ready
}
