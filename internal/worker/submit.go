package worker

import (
	"context"
	"fmt"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/jobstore"
	"github.com/hochfrequenz/vibe-builder/internal/ledger"
	"github.com/hochfrequenz/vibe-builder/internal/patch"
)

// Submission identifies an enqueued applyPlan job
type Submission struct {
	JobID string `json:"jobId"`
	RunID string `json:"runId,omitempty"`
}

// Submit validates an apply request, creates a run when a project is given,
// and enqueues the applyPlan job. The plan (or snapshot) must exist. The
// run is created with its job id, so after Submit only the worker writes it.
func Submit(ctx context.Context, jobs *jobstore.Store, store *ledger.Store, data domain.ApplyPlanData) (*Submission, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	data.SelectedPaths = patch.SanitizeSelection(data.SelectedPaths)
	data.RunID = ""
	data.JobID = ""

	var (
		plan *domain.Plan
		err  error
	)
	if data.IsSnapshot() {
		plan, err = store.LoadSnapshot(data.ProjectID, data.SnapshotFromRunID)
	} else {
		plan, err = store.LoadPlan(data.PlanID)
	}
	if err != nil {
		return nil, err
	}

	jobID := jobstore.NewJobID()
	if data.ProjectID != "" {
		if _, err := store.GetProject(data.ProjectID); err != nil {
			return nil, err
		}
		run, err := store.CreateRun(ledger.RunInput{
			ProjectID:     data.ProjectID,
			PlanID:        data.PlanID,
			Prompt:        plan.Prompt,
			Framework:     string(plan.Framework),
			SelectedPaths: data.SelectedPaths,
			JobID:         jobID,
		})
		if err != nil {
			return nil, fmt.Errorf("creating run: %w", err)
		}
		data.RunID = run.RunID
	}

	if _, err := jobs.EnqueueWithID(ctx, jobID, domain.JobApplyPlan, data); err != nil {
		return nil, err
	}
	return &Submission{JobID: jobID, RunID: data.RunID}, nil
}
