package procrunner

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrInvalidPID is returned when asked to signal a non-positive pid
var ErrInvalidPID = errors.New("invalid pid")

// KillResult reports the outcome of a kill attempt. A non-zero Code means
// the signal could not be delivered; it is informational, not an error.
type KillResult struct {
	Code   int    `json:"code"`
	Output string `json:"output"`
}

// StartDetached launches a long-lived process in its own process group
// with stdio discarded and returns its pid without waiting for it. The
// caller becomes the sole owner of the pid.
func StartDetached(name string, args []string, dir string) (int, error) {
	bin, argv := commandLine(name, args)
	cmd := exec.Command(bin, argv...)
	cmd.Dir = dir
	cmd.SysProcAttr = detachedAttrs()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", name, err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so it does not linger as a zombie
	go cmd.Wait()

	return pid, nil
}

// KillTree forcefully terminates pid and every process it spawned
func KillTree(pid int) (*KillResult, error) {
	if pid <= 0 {
		return nil, ErrInvalidPID
	}
	return killTree(pid), nil
}

// Alive reports whether a process with the given pid exists
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}
