package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DaemonBinary is the executable name of the daemon.
const DaemonBinary = "cflowd"

// StartOptions contains options for starting the daemon
type StartOptions struct {
	// DaemonPath is the path to the daemon executable
	DaemonPath string
	// SocketPath is the socket the daemon listens on
	SocketPath string
	// ConfigPath is passed to the daemon when set
	ConfigPath string
	Verbose    bool
	// WaitForReady blocks until the daemon answers a ping
	WaitForReady bool
	ReadyTimeout time.Duration
	// Background detaches the daemon and sends its output to a log file
	Background bool
}

// StartResult contains the result of a start operation
type StartResult struct {
	Success   bool      `json:"success"`
	PID       int       `json:"pid,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Ready     bool      `json:"ready"`
	LogFile   string    `json:"log_file,omitempty"`
}

// StopResult contains the result of a stop operation
type StopResult struct {
	Success   bool      `json:"success"`
	PID       int       `json:"pid,omitempty"`
	StoppedAt time.Time `json:"stopped_at"`
	Error     string    `json:"error,omitempty"`
	Forced    bool      `json:"forced,omitempty"`
}

// StatusResult contains the result of a status operation
type StatusResult struct {
	Status     string      `json:"status"`
	Running    bool        `json:"running"`
	Ready      bool        `json:"ready"`
	PID        int         `json:"pid,omitempty"`
	SocketPath string      `json:"socket_path"`
	StartedAt  time.Time   `json:"started_at,omitempty"`
	Error      string      `json:"error,omitempty"`
	Info       *StatusInfo `json:"info,omitempty"`
}

// LogFile is where a background daemon writes its log.
func LogFile() string {
	return filepath.Join(Dir(), "cflowd.log")
}

// Start launches the daemon unless one is already answering.
func Start(opts *StartOptions) (*StartResult, error) {
	if status := CheckStatus(opts.SocketPath); status.Running && status.Ready {
		return &StartResult{Success: false, PID: status.PID, Ready: true, Error: "daemon already running"}, nil
	}

	daemonPath := opts.DaemonPath
	if daemonPath == "" {
		daemonPath = findDaemonBinary()
		if daemonPath == "" {
			return nil, fmt.Errorf("daemon binary %s not found", DaemonBinary)
		}
	}

	args := []string{}
	if opts.SocketPath != "" {
		args = append(args, "--socket", opts.SocketPath)
	}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}

	cmd := exec.Command(daemonPath, args...)
	cmd.Env = os.Environ()

	result := &StartResult{}
	if opts.Background {
		if err := ensureDir(); err != nil {
			return nil, err
		}
		logFile, err := os.OpenFile(LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening daemon log: %w", err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		detach(cmd)
		result.LogFile = LogFile()
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting daemon: %w", err)
	}

	pid := cmd.Process.Pid
	startedAt := time.Now()
	result.PID = pid
	result.StartedAt = startedAt

	if err := WritePID(pid); err != nil {
		cmd.Process.Kill()
		return nil, fmt.Errorf("writing PID file: %w", err)
	}
	if err := WriteStatus(&DaemonStatus{Running: true, PID: pid, SocketPath: opts.SocketPath, StartedAt: startedAt}); err != nil {
		cmd.Process.Kill()
		RemovePID()
		return nil, fmt.Errorf("writing status: %w", err)
	}

	if opts.WaitForReady {
		timeout := opts.ReadyTimeout
		if timeout <= 0 {
			timeout = ReadyTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := waitForReady(ctx, opts.SocketPath); err != nil {
			cmd.Process.Kill()
			cleanup()
			result.Error = fmt.Sprintf("daemon not ready: %v", err)
			return result, nil
		}
		result.Ready = true
		WriteStatus(&DaemonStatus{Running: true, PID: pid, Ready: true, SocketPath: opts.SocketPath, StartedAt: startedAt})
	}

	if opts.Background {
		// The child outlives us; release it so it is not reaped as a zombie.
		cmd.Process.Release()
	}

	result.Success = true
	return result, nil
}

// findDaemonBinary looks next to the running executable, in CFLOW_DAEMON_PATH,
// in ./bin and finally on PATH.
func findDaemonBinary() string {
	if path := os.Getenv("CFLOW_DAEMON_PATH"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	name := DaemonBinary + exeSuffix()
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	candidate := filepath.Join(".", "bin", name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

// waitForReady pings until the daemon answers or ctx expires.
func waitForReady(ctx context.Context, socketPath string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := Ping(ctx, socketPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for daemon to be ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop asks the daemon to shut down and kills it if it does not exit in time.
func Stop(socketPath string) (*StopResult, error) {
	pid, err := ReadPID()
	if err != nil {
		return &StopResult{Success: false, Error: "daemon not running (no PID file)"}, nil
	}

	if !IsProcessRunning(pid) {
		cleanup()
		return &StopResult{Success: false, Error: "daemon not running (process not found)"}, nil
	}

	if err := sendStopCommand(socketPath); err == nil && waitForShutdown(pid, ShutdownTimeout) {
		cleanup()
		return &StopResult{Success: true, PID: pid, StoppedAt: time.Now()}, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		cleanup()
		return &StopResult{Success: true, PID: pid, StoppedAt: time.Now(), Error: "process already terminated"}, nil
	}
	if err := process.Kill(); err != nil {
		return &StopResult{Success: false, PID: pid, Error: fmt.Sprintf("failed to kill process: %v", err)}, nil
	}
	waitForShutdown(pid, 2*time.Second)
	cleanup()

	return &StopResult{Success: true, PID: pid, StoppedAt: time.Now(), Forced: true}, nil
}

func sendStopCommand(socketPath string) error {
	cmd, err := NewCommand(CmdStop, nil)
	if err != nil {
		return err
	}
	return Call(context.Background(), socketPath, pingTimeout, cmd, nil)
}

// waitForShutdown waits for the process to exit
func waitForShutdown(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

// GetStatus returns a formatted status result
func GetStatus(socketPath string) *StatusResult {
	status := CheckStatus(socketPath)
	result := &StatusResult{
		Running:    status.Running,
		Ready:      status.Ready,
		PID:        status.PID,
		SocketPath: socketPath,
		StartedAt:  status.StartedAt,
		Error:      status.Error,
		Info:       status.Info,
	}

	switch {
	case !status.Running:
		result.Status = "stopped"
	case !status.Ready:
		result.Status = "starting"
	default:
		result.Status = "running"
	}
	return result
}
