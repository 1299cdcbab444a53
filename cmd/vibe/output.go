package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/jobstore"
)

var (
	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	queuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	headerStyle = lipgloss.NewStyle().
			Bold(true)
)

// styleStatus colors run statuses and job states alike
func styleStatus(status string) string {
	switch status {
	case string(domain.RunCompleted):
		return okStyle.Render(status)
	case string(domain.RunRunning), jobstore.StateActive:
		return runningStyle.Render(status)
	case string(domain.RunFailed):
		return failedStyle.Render(status)
	default:
		return queuedStyle.Render(status)
	}
}

// relTime renders an ISO timestamp as "3 minutes ago"
func relTime(iso string) string {
	if iso == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return iso
	}
	return humanize.Time(t)
}

func relTimeOf(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, headerStyle.Render(h))
	}
	fmt.Fprintln(tw)
	return tw
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
