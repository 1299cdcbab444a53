package domain

import (
	"errors"
	"fmt"
	"time"
)

// Framework identifies a supported project template
type Framework string

const (
	FrameworkViteReact Framework = "vite-react"
	FrameworkNextJS    Framework = "nextjs"
)

// Frameworks lists every supported framework in a stable order
var Frameworks = []Framework{FrameworkViteReact, FrameworkNextJS}

// ErrUnsupportedFramework is returned for unknown framework identifiers
var ErrUnsupportedFramework = errors.New("unsupported framework")

// ParseFramework validates a framework identifier
func ParseFramework(s string) (Framework, error) {
	for _, f := range Frameworks {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFramework, s)
}

// RunStatus represents the execution state of a run
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// TimeLayout is fixed width and zero padded, so lexical order matches
// chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout (UTC)
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NowISO returns the current time in TimeLayout
func NowISO() string {
	return FormatTime(time.Now())
}
