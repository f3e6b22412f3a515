//go:build windows

package daemonrunner

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// IsRunning checks liveness via tasklist; os.FindProcess always succeeds on
// Windows regardless of whether the PID exists, so it can't be used alone.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), strconv.Itoa(pid))
}

// Stop terminates pid with Process.Kill. Windows console processes have
// no SIGTERM equivalent, so this is never a graceful shutdown.
func Stop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("daemonrunner: find process %d: %w", pid, err)
	}
	return proc.Kill()
}
