package procrunner

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestOSRunner_Run_StreamsLines(t *testing.T) {
	skipOnWindows(t)

	var lines []string
	r := NewOSRunner()
	res, err := r.Run(context.Background(), "sh", []string{"-c", "printf 'one\\r\\n\\n  two  \\n'"}, t.TempDir(), func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("got exit code %d, want 0", res.ExitCode)
	}

	want := []string{"one", "  two"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %q, want %q", len(lines), lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
	if strings.Contains(res.Output, "\r") {
		t.Errorf("output still contains carriage return: %q", res.Output)
	}
}

func TestOSRunner_Run_InterleavesStderr(t *testing.T) {
	skipOnWindows(t)

	var lines []string
	r := NewOSRunner()
	_, err := r.Run(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2"}, t.TempDir(), func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "out" || lines[1] != "err" {
		t.Errorf("got lines %q, want [out err]", lines)
	}
}

func TestOSRunner_Run_NonZeroExit(t *testing.T) {
	skipOnWindows(t)

	r := NewOSRunner()
	_, err := r.Run(context.Background(), "sh", []string{"-c", "echo broken 1>&2; exit 3"}, t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("got %T, want *ExitError", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("got exit code %d, want 3", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Output, "broken") {
		t.Errorf("output %q does not contain %q", exitErr.Output, "broken")
	}
}

func TestOSRunner_Run_MissingBinary(t *testing.T) {
	skipOnWindows(t)

	r := NewOSRunner()
	_, err := r.Run(context.Background(), "definitely-not-a-real-binary-xyz", nil, t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Error("spawn failure should not be reported as an exit error")
	}
}

func TestOSRunner_Run_ContextCancel(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := NewOSRunner()
	start := time.Now()
	_, err := r.Run(ctx, "sleep", []string{"10"}, t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Run did not return promptly after cancel")
	}
}

func TestKillTree_InvalidPID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if _, err := KillTree(pid); !errors.Is(err, ErrInvalidPID) {
			t.Errorf("KillTree(%d): got %v, want ErrInvalidPID", pid, err)
		}
	}
}

func TestStartDetached_KillTree(t *testing.T) {
	skipOnWindows(t)

	pid, err := StartDetached("sleep", []string{"30"}, t.TempDir())
	if err != nil {
		t.Fatalf("StartDetached failed: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("got pid %d, want positive", pid)
	}
	if !Alive(pid) {
		t.Fatal("detached process not running")
	}

	res, err := KillTree(pid)
	if err != nil {
		t.Fatalf("KillTree failed: %v", err)
	}
	if res.Code != 0 {
		t.Errorf("got kill code %d (%s), want 0", res.Code, res.Output)
	}

	deadline := time.Now().Add(3 * time.Second)
	for Alive(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if Alive(pid) {
		t.Error("process still alive after KillTree")
	}
}
