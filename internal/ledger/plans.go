package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

func (s *Store) planPath(planID string) string {
	return filepath.Join(s.dataDir, "plans", planID+".json")
}

// SavePlan persists a plan, assigning a new id when it has none
func (s *Store) SavePlan(plan *domain.Plan) error {
	if plan.PlanID == "" {
		plan.PlanID = uuid.NewString()
	}
	if !validID(plan.PlanID) || plan.PlanID == domain.SnapshotPlanID {
		return fmt.Errorf("%w: plan %q", ErrInvalidID, plan.PlanID)
	}
	return s.writeJSON(s.planPath(plan.PlanID), plan)
}

// LoadPlan reads a saved plan
func (s *Store) LoadPlan(planID string) (*domain.Plan, error) {
	if !validID(planID) {
		return nil, ErrPlanNotFound
	}
	var plan domain.Plan
	if err := readJSON(s.planPath(planID), &plan); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("reading plan %s: %w", planID, err)
	}
	return &plan, nil
}
