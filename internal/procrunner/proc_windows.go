//go:build windows

package procrunner

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

func detachedAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x00000008, // DETACHED_PROCESS
	}
}

// killTree uses taskkill /T so children of the dev server command are
// reaped too, not only cmd.exe.
func killTree(pid int) *KillResult {
	cmd := exec.Command("cmd.exe", "/c", "taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	out, err := cmd.CombinedOutput()
	code := 0
	if err != nil {
		code = 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
	}
	return &KillResult{Code: code, Output: strings.TrimSpace(string(out))}
}

func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}
