//go:build windows

package smoke

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(pid int) error {
	return killGroup(pid)
}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// groupAlive is false on Windows: there is no process group to outlive the
// leader, whose exit is observed through Wait.
func groupAlive(int) bool { return false }
