// Package procrunner spawns package-manager and scaffolding subprocesses,
// streaming their combined output line by line.
package procrunner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode"
)

// LineFunc receives each non-empty, right-trimmed output line as it arrives
type LineFunc func(line string)

// Result is returned when a command exits with code 0
type Result struct {
	ExitCode int
	Output   string
}

// ExitError is returned when a command exits with a non-zero code.
// Output holds everything the command wrote to stdout and stderr.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

// Runner runs a command to completion
type Runner interface {
	Run(ctx context.Context, name string, args []string, dir string, onLine LineFunc) (*Result, error)
}

// OSRunner implements Runner with os/exec
type OSRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the
	// process exits (grandchildren may hold them open).
	WaitDelay time.Duration
}

// NewOSRunner creates a runner with default settings
func NewOSRunner() *OSRunner {
	return &OSRunner{WaitDelay: 5 * time.Second}
}

// commandLine wraps the invocation in cmd.exe on Windows so .cmd shims
// like npm and npx resolve.
func commandLine(name string, args []string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd.exe", append([]string{"/c", name}, args...)
	}
	return name, args
}

// Run spawns name in dir and blocks until it exits. stdout and stderr
// share one pipe so lines keep their arrival order.
func (r *OSRunner) Run(ctx context.Context, name string, args []string, dir string, onLine LineFunc) (*Result, error) {
	bin, argv := commandLine(name, args)
	cmd := exec.CommandContext(ctx, bin, argv...)
	cmd.Dir = dir
	cmd.WaitDelay = r.WaitDelay

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var output strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamLines(pr, &output, onLine)
	}()

	if err := cmd.Start(); err != nil {
		pw.Close()
		<-done
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}

	err := cmd.Wait()
	pw.Close()
	<-done

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil, &ExitError{
				Command:  name,
				ExitCode: exitErr.ExitCode(),
				Output:   output.String(),
			}
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &Result{ExitCode: 0, Output: output.String()}, nil
}

// streamLines normalizes line endings, records the output and hands every
// non-empty line to onLine. It drains r even if onLine is nil.
func streamLines(r io.Reader, output *strings.Builder, onLine LineFunc) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), "\r", "")
		output.WriteString(line)
		output.WriteByte('\n')

		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line != "" && onLine != nil {
			onLine(line)
		}
	}
	// Oversized line: keep draining so the child never blocks on write
	io.Copy(io.Discard, r)
}
