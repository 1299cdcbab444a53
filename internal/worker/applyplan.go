package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/patch"
	"github.com/hochfrequenz/vibe-builder/internal/pipeline"
	"github.com/hochfrequenz/vibe-builder/internal/procrunner"
)

// outputTailLines bounds how much subprocess output is repeated in the
// failure summary
const outputTailLines = 20

// ApplyResult is the return value of a completed applyPlan job
type ApplyResult struct {
	OK         bool   `json:"ok"`
	PlanID     string `json:"planId"`
	PID        int    `json:"pid"`
	Port       int    `json:"port"`
	PreviewURL string `json:"previewUrl"`
	JobDir     string `json:"jobDir"`
}

func (w *Worker) applyPlan(ctx context.Context, jobID string, data domain.ApplyPlanData) (*ApplyResult, error) {
	log := w.jobLog(jobID, data.ProjectID, data.RunID)

	w.emit(StatusEvent{JobID: jobID, ProjectID: data.ProjectID, RunID: data.RunID, State: "active"})

	res, err := w.runApplyPlan(ctx, jobID, data, log)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		}
		log("applyPlan: failed: " + err.Error())
		var exitErr *procrunner.ExitError
		if errors.As(err, &exitErr) {
			for _, line := range outputTail(exitErr.Output, outputTailLines) {
				log("  | " + line)
			}
		}

		step := ""
		var stepErr *pipeline.StepError
		if errors.As(err, &stepErr) {
			step = string(stepErr.Step)
		}
		w.markRun(data, domain.RunFailed, "", err.Error())
		w.emit(StatusEvent{
			JobID: jobID, ProjectID: data.ProjectID, RunID: data.RunID,
			State: "failed", Step: step, FailedReason: err.Error(),
		})
		return nil, err
	}

	w.markRun(data, domain.RunCompleted, res.PreviewURL, "")
	w.emit(StatusEvent{
		JobID: jobID, ProjectID: data.ProjectID, RunID: data.RunID,
		State: "completed", PreviewURL: res.PreviewURL,
	})
	return res, nil
}

func (w *Worker) runApplyPlan(ctx context.Context, jobID string, data domain.ApplyPlanData, log pipeline.LogSink) (*ApplyResult, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	log("applyPlan: planId=" + data.PlanID)

	plan, err := w.loadPlan(data, log)
	if err != nil {
		return nil, err
	}
	log(fmt.Sprintf("applyPlan: framework=%s", plan.Framework))

	files, err := patch.SelectFiles(plan, patch.SanitizeSelection(data.SelectedPaths))
	if err != nil {
		return nil, fmt.Errorf("applyPlan: %w", err)
	}

	baseDir := filepath.Join(w.cfg.WorkspaceDir, fmt.Sprintf("job-%d-%s", time.Now().UnixMilli(), jobID))
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("applyPlan: creating workspace: %w", err)
	}
	log("applyPlan: workspace=" + baseDir)

	if data.ProjectID != "" && data.RunID != "" {
		w.markRun(data, domain.RunRunning, "", "")
		snap := domain.NewSnapshot(plan.Framework, plan.Prompt, files)
		if err := w.ledger.WriteSnapshot(data.ProjectID, data.RunID, snap); err != nil {
			return nil, fmt.Errorf("applyPlan: writing snapshot: %w", err)
		}
	}

	result, err := w.builder.Run(ctx, pipeline.Request{
		BaseDir:   baseDir,
		Framework: plan.Framework,
		Prompt:    plan.Prompt,
		Files:     files,
		OnState: func(s pipeline.State) {
			w.emit(StatusEvent{JobID: jobID, ProjectID: data.ProjectID, RunID: data.RunID, State: "active", Step: string(s)})
		},
	}, log)
	if err != nil {
		return nil, err
	}
	// The dev server runs in the framework's working directory, which
	// is a subdirectory of the workspace for nextjs.
	jobDir := result.WorkDir
	if jobDir == "" {
		jobDir = baseDir
	}

	w.registry.Register(domain.RunningJob{
		JobID:      jobID,
		PID:        result.PID,
		Port:       result.Port,
		JobDir:     jobDir,
		PreviewURL: result.PreviewURL,
		CreatedAt:  domain.NowISO(),
		Prompt:     plan.Prompt,
		Source:     "queue",
	})

	log("applyPlan: previewUrl=" + result.PreviewURL)
	log("applyPlan: done")

	return &ApplyResult{
		OK:         true,
		PlanID:     data.PlanID,
		PID:        result.PID,
		Port:       result.Port,
		PreviewURL: result.PreviewURL,
		JobDir:     jobDir,
	}, nil
}

func (w *Worker) loadPlan(data domain.ApplyPlanData, log pipeline.LogSink) (*domain.Plan, error) {
	if data.IsSnapshot() {
		plan, err := w.ledger.LoadSnapshot(data.ProjectID, data.SnapshotFromRunID)
		if err != nil {
			return nil, fmt.Errorf("applyPlan: %w", err)
		}
		log("applyPlan: loaded snapshot from run=" + data.SnapshotFromRunID)
		return plan, nil
	}

	plan, err := w.ledger.LoadPlan(data.PlanID)
	if err != nil {
		return nil, fmt.Errorf("applyPlan: %w", err)
	}
	return plan, nil
}

// markRun updates the owning run, if any, and records a status event in
// its log. Missing runs are ignored.
func (w *Worker) markRun(data domain.ApplyPlanData, status domain.RunStatus, previewURL, reason string) {
	if data.ProjectID == "" || data.RunID == "" {
		return
	}

	p := domain.RunPatch{Status: &status}
	if data.JobID != "" {
		p.JobID = &data.JobID
	}
	if status.IsTerminal() {
		ended := domain.NowISO()
		p.EndedAt = &ended
	}
	if previewURL != "" {
		p.PreviewURL = &previewURL
	}
	if reason != "" {
		p.FailedReason = &reason
	}

	run, err := w.ledger.UpdateRun(data.ProjectID, data.RunID, p)
	if err != nil {
		w.logger.Warn("run update failed", "run", data.RunID, "error", err)
		return
	}
	if run == nil {
		w.logger.Warn("run not found for update", "project", data.ProjectID, "run", data.RunID)
		return
	}

	event := map[string]string{"status": string(status)}
	if previewURL != "" {
		event["previewUrl"] = previewURL
	}
	if reason != "" {
		event["failedReason"] = reason
	}
	if err := w.ledger.AppendEvent(data.ProjectID, data.RunID, domain.EventStatus, "", event); err != nil {
		w.logger.Warn("run status event failed", "run", data.RunID, "error", err)
	}
}

func outputTail(output string, n int) []string {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return nil
	}
	lines := strings.Split(output, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
