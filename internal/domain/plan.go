package domain

// SnapshotPlanID is the sentinel plan id telling the worker to load files
// from a prior run's snapshot instead of the plan store.
const SnapshotPlanID = "__snapshot__"

// PlanFile is one generated file, path relative to the working directory
type PlanFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Plan is the file set a generation request resolves to.
// Immutable once persisted.
type Plan struct {
	PlanID    string     `json:"planId"`
	Framework Framework  `json:"framework"`
	Prompt    string     `json:"prompt"`
	Files     []PlanFile `json:"files"`
}

// Paths returns the file paths in plan order
func (p *Plan) Paths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = f.Path
	}
	return paths
}

// NewSnapshot captures the files applied by a run so it can be replayed
func NewSnapshot(framework Framework, prompt string, files []PlanFile) *Plan {
	copied := make([]PlanFile, len(files))
	copy(copied, files)
	return &Plan{
		PlanID:    SnapshotPlanID,
		Framework: framework,
		Prompt:    prompt,
		Files:     copied,
	}
}
