package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const pidFileName = "vcfping.pid"

// PIDPath returns the path of the daemon PID file under dataDir.
func PIDPath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}

// WritePID records pid in the daemon PID file.
func WritePID(dataDir string, pid int) error {
	pidData := fmt.Sprintf("%d\n", pid)

	if err := os.WriteFile(PIDPath(dataDir), []byte(pidData), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	return nil
}

// ReadPID reads the recorded daemon PID.
func ReadPID(dataDir string) (int, error) {
	data, err := os.ReadFile(PIDPath(dataDir))
	if err != nil {
		return 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}

	return pid, nil
}

// IsProcessRunning reports whether a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence without sending anything.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false
	}

	return true
}

// RemovePID deletes the PID file. Missing files are not an error.
func RemovePID(dataDir string) error {
	if err := os.Remove(PIDPath(dataDir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
