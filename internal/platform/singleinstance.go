package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// InstanceLock prevents two agents from monitoring the same machine. A
// second copy would double-count input and race on the local files.
type InstanceLock struct {
	path string
}

// AcquireInstanceLock writes a pid file under dir, refusing when another
// live agent already holds it. A lock left by a dead process is taken
// over.
func AcquireInstanceLock(dir string) (*InstanceLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, "agent.pid")

	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && pidAlive(pid) {
			return nil, fmt.Errorf("another agent instance is running (pid %d)", pid)
		}
		// Stale lock from a crashed run.
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &InstanceLock{path: path}, nil
}

// Release removes the pid file.
func (l *InstanceLock) Release() error {
	return os.Remove(l.path)
}

// pidAlive reports whether a process with the given pid exists. Signal 0
// probes without delivering anything.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
