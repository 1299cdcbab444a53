//go:build !windows

package procrunner

import (
	"syscall"
)

func detachedAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killTree signals the whole process group first; the dev server command
// was started as a group leader so its children share the group id.
func killTree(pid int) *KillResult {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return &KillResult{Code: 0, Output: "SIGKILL sent to process group"}
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return &KillResult{Code: 1, Output: err.Error()}
	}
	return &KillResult{Code: 0, Output: "SIGKILL sent"}
}

func alive(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
