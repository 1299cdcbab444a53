package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

// WriteSnapshot records the files a run applies so the run can be replayed.
// Failures are logged with their location and returned.
func (s *Store) WriteSnapshot(projectID, runID string, snap *domain.Plan) error {
	if !validID(projectID) || !validID(runID) {
		return fmt.Errorf("%w: %s/%s", ErrInvalidID, projectID, runID)
	}

	path := s.SnapshotPath(projectID, runID)
	if err := s.writeJSON(path, snap); err != nil {
		s.logger.Error("write snapshot failed",
			"project", projectID, "run", runID, "path", path, "error", err)
		return err
	}
	return nil
}

// LoadSnapshot reads a run snapshot. The returned plan always carries the
// snapshot sentinel id unless the file names another.
func (s *Store) LoadSnapshot(projectID, runID string) (*domain.Plan, error) {
	if !validID(projectID) || !validID(runID) {
		return nil, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, projectID, runID)
	}

	path := s.SnapshotPath(projectID, runID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var raw struct {
		PlanID    string             `json:"planId"`
		Framework domain.Framework   `json:"framework"`
		Prompt    string             `json:"prompt"`
		Files     *[]domain.PlanFile `json:"files"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.Files == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSnapshot, path)
	}

	plan := &domain.Plan{
		PlanID:    raw.PlanID,
		Framework: raw.Framework,
		Prompt:    raw.Prompt,
		Files:     *raw.Files,
	}
	if plan.PlanID == "" {
		plan.PlanID = domain.SnapshotPlanID
	}
	return plan, nil
}
