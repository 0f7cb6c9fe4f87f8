package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CFLOW_DAEMON_DIR", dir)
	return dir
}

func TestDirDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CFLOW_DAEMON_DIR", "")

	expected := filepath.Join(home, ".codeflow", "run")
	if got := Dir(); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestDirWithEnv(t *testing.T) {
	dir := useTempDir(t)

	if got := Dir(); got != dir {
		t.Errorf("Expected %q, got %q", dir, got)
	}
	if got := PIDFile(); got != filepath.Join(dir, PIDFileName) {
		t.Errorf("PIDFile() = %q", got)
	}
	if got := StatusFile(); got != filepath.Join(dir, StatusFileName) {
		t.Errorf("StatusFile() = %q", got)
	}
}

func TestWriteAndReadPID(t *testing.T) {
	useTempDir(t)

	if err := WritePID(4242); err != nil {
		t.Fatalf("WritePID failed: %v", err)
	}
	pid, err := ReadPID()
	if err != nil {
		t.Fatalf("ReadPID failed: %v", err)
	}
	if pid != 4242 {
		t.Errorf("Expected PID 4242, got %d", pid)
	}

	if err := RemovePID(); err != nil {
		t.Fatalf("RemovePID failed: %v", err)
	}
	if _, err := ReadPID(); err == nil {
		t.Error("Expected error after RemovePID")
	}
	if err := RemovePID(); err != nil {
		t.Errorf("RemovePID on missing file should succeed: %v", err)
	}
}

func TestReadPIDInvalidContent(t *testing.T) {
	dir := useTempDir(t)

	tests := []string{"", "abc", "12x"}
	for _, content := range tests {
		if err := os.WriteFile(filepath.Join(dir, PIDFileName), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadPID(); err == nil {
			t.Errorf("Expected error for PID content %q", content)
		}
	}
}

func TestWritePIDCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "run")
	t.Setenv("CFLOW_DAEMON_DIR", dir)

	if err := WritePID(1); err != nil {
		t.Fatalf("WritePID failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected directory to be created: %v", err)
	}
}

func TestWriteAndReadStatus(t *testing.T) {
	useTempDir(t)

	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &DaemonStatus{Running: true, PID: 7, Ready: true, SocketPath: "/tmp/x.sock", StartedAt: startedAt}
	if err := WriteStatus(in); err != nil {
		t.Fatalf("WriteStatus failed: %v", err)
	}

	out, err := ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus failed: %v", err)
	}
	if !out.Running || !out.Ready || out.PID != 7 || out.SocketPath != "/tmp/x.sock" {
		t.Errorf("status mismatch: %+v", out)
	}
	if !out.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want %v", out.StartedAt, startedAt)
	}

	if err := RemoveStatus(); err != nil {
		t.Fatalf("RemoveStatus failed: %v", err)
	}
	if _, err := ReadStatus(); err == nil {
		t.Error("Expected error after RemoveStatus")
	}
}

func TestReadStatusInvalidJSON(t *testing.T) {
	dir := useTempDir(t)
	os.WriteFile(filepath.Join(dir, StatusFileName), []byte("{not json"), 0644)

	if _, err := ReadStatus(); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if IsProcessRunning(0) || IsProcessRunning(-5) {
		t.Error("non-positive PIDs are never running")
	}
	if IsProcessRunning(999999999) {
		t.Error("PID 999999999 should not be running")
	}
}

func TestCheckStatusNoPIDFile(t *testing.T) {
	useTempDir(t)

	status := CheckStatus("/tmp/cflow-test-none.sock")
	if status.Running || status.Ready {
		t.Errorf("Expected stopped status, got %+v", status)
	}
	if status.Error != "" {
		t.Errorf("missing PID file is not an error: %s", status.Error)
	}
}

func TestCheckStatusWithStalePIDFile(t *testing.T) {
	useTempDir(t)
	WritePID(999999999)
	WriteStatus(&DaemonStatus{Running: true, PID: 999999999})

	status := CheckStatus("/tmp/cflow-test-none.sock")
	if status.Running {
		t.Error("stale PID should not be running")
	}
	if _, err := os.Stat(PIDFile()); !os.IsNotExist(err) {
		t.Error("stale PID file should be removed")
	}
	if _, err := os.Stat(StatusFile()); !os.IsNotExist(err) {
		t.Error("stale status file should be removed")
	}
}

func TestCheckStatusNotResponding(t *testing.T) {
	useTempDir(t)
	WritePID(os.Getpid())

	status := CheckStatus(filepath.Join(t.TempDir(), "none.sock"))
	if !status.Running || status.Ready {
		t.Errorf("Expected running but not ready, got %+v", status)
	}
	if !strings.Contains(status.Error, "not responding") {
		t.Errorf("Error = %q", status.Error)
	}
	if IsRunning(filepath.Join(t.TempDir(), "none.sock")) {
		t.Error("IsRunning should be false without a server")
	}
}
