package domain

// Project groups runs. Never mutated after creation.
type Project struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// Run is one build attempt of a plan under a project
type Run struct {
	RunID         string    `json:"runId"`
	ProjectID     string    `json:"projectId"`
	PlanID        string    `json:"planId"`
	Prompt        string    `json:"prompt"`
	Framework     string    `json:"framework"`
	RepoID        string    `json:"repoId"`
	SelectedPaths []string  `json:"selectedPaths"`
	JobID         string    `json:"jobId"`
	Status        RunStatus `json:"status"`
	CreatedAt     string    `json:"createdAt"`
	EndedAt       *string   `json:"endedAt"`
	PreviewURL    string    `json:"previewUrl"`
	FailedReason  string    `json:"failedReason"`
}

// RunPatch holds the fields to merge into a run. Nil fields are left untouched.
type RunPatch struct {
	JobID        *string
	Status       *RunStatus
	EndedAt      *string
	PreviewURL   *string
	FailedReason *string
}

// Apply shallow-merges the patch into r
func (p RunPatch) Apply(r *Run) {
	if p.JobID != nil {
		r.JobID = *p.JobID
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.EndedAt != nil {
		ended := *p.EndedAt
		r.EndedAt = &ended
	}
	if p.PreviewURL != nil {
		r.PreviewURL = *p.PreviewURL
	}
	if p.FailedReason != nil {
		r.FailedReason = *p.FailedReason
	}
}

// Run event types written to log.jsonl
const (
	EventLog    = "log"
	EventStatus = "status"
)

// RunEvent is one line of a run's log.jsonl
type RunEvent struct {
	Timestamp string `json:"t"`
	Type      string `json:"type"`
	Line      string `json:"line,omitempty"`
	Data      any    `json:"data,omitempty"`
}
