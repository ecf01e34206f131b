package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is the externally visible lease for the daemon: a single process
// id persisted to disk. Existence alone never means "running"; liveness is
// re-validated against the recorded pid before any action.
type PIDFile struct {
	Path string
}

// Read returns the recorded pid. A missing file or garbage content reads
// as no lease.
func (p PIDFile) Read() (int, bool) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (p PIDFile) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create pid file directory: %w", err)
	}
	if err := os.WriteFile(p.Path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write pid file %q: %w", p.Path, err)
	}
	return nil
}

func (p PIDFile) Remove() {
	_ = os.Remove(p.Path)
}

// processAlive probes the pid with signal 0; it checks existence without
// delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
