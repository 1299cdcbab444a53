package domain

import "errors"

// Job names understood by the worker
const (
	JobApplyPlan = "applyPlan"
	JobTest      = "test"
)

// ApplyPlanData is the payload of an applyPlan job
type ApplyPlanData struct {
	PlanID            string   `json:"planId"`
	SelectedPaths     []string `json:"selectedPaths,omitempty"`
	ProjectID         string   `json:"projectId,omitempty"`
	RunID             string   `json:"runId,omitempty"`
	SnapshotFromRunID string   `json:"snapshotFromRunId,omitempty"`
	JobID             string   `json:"jobId,omitempty"`
}

var (
	ErrPlanIDRequired = errors.New("applyPlan: planId is required")
	ErrSnapshotSource = errors.New("applyPlan: missing projectId or snapshotFromRunId")
)

// IsSnapshot reports whether the files come from a prior run's snapshot
func (d ApplyPlanData) IsSnapshot() bool {
	return d.PlanID == SnapshotPlanID
}

// Validate checks the payload before any side effect happens
func (d ApplyPlanData) Validate() error {
	if d.PlanID == "" {
		return ErrPlanIDRequired
	}
	if d.IsSnapshot() && (d.ProjectID == "" || d.SnapshotFromRunID == "") {
		return ErrSnapshotSource
	}
	return nil
}

// LogEntry is one job log line. T is unix milliseconds.
type LogEntry struct {
	T    int64  `json:"t"`
	Line string `json:"line"`
}

// RunningJob is a live dev server spawned for a job
type RunningJob struct {
	JobID      string `json:"jobId"`
	PID        int    `json:"pid"`
	Port       int    `json:"port"`
	JobDir     string `json:"jobDir"`
	PreviewURL string `json:"previewUrl"`
	CreatedAt  string `json:"createdAt"`
	Prompt     string `json:"prompt"`
	Source     string `json:"source,omitempty"`
}
