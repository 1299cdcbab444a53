// Package ledger persists projects, runs, run event logs, run snapshots and
// plans as plain JSON files under a data directory.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

const DefaultProjectName = "Untitled Project"

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrRunNotFound      = errors.New("run not found")
	ErrPlanNotFound     = errors.New("plan not found (expired or deleted)")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInvalidSnapshot  = errors.New("invalid snapshot format")
	ErrInvalidID        = errors.New("invalid id")
)

// Store is the file-backed ledger. Writes to a single run are expected to
// come from one owner at a time; no cross-process locking is done.
type Store struct {
	dataDir string
	rename  RenameFunc
	logger  *slog.Logger

	mu     sync.Mutex
	lastMs int64
}

// New creates a store rooted at dataDir
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{filepath.Join(dataDir, "projects"), filepath.Join(dataDir, "plans")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Store{
		dataDir: dataDir,
		rename:  os.Rename,
		logger:  logger.With("component", "ledger"),
	}, nil
}

// DataDir returns the root directory
func (s *Store) DataDir() string {
	return s.dataDir
}

func (s *Store) writeJSON(path string, v any) error {
	return writeJSONAtomic(path, v, s.rename)
}

// validID rejects ids that could escape their parent directory
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// nextMs returns a unix millisecond stamp strictly greater than the last
// one handed out by this store.
func (s *Store) nextMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := time.Now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	return ms
}

func (s *Store) projectsDir() string {
	return filepath.Join(s.dataDir, "projects")
}

func (s *Store) projectDir(projectID string) string {
	return filepath.Join(s.projectsDir(), projectID)
}

func (s *Store) runsDir(projectID string) string {
	return filepath.Join(s.projectDir(projectID), "runs")
}

func (s *Store) runDir(projectID, runID string) string {
	return filepath.Join(s.runsDir(projectID), runID)
}

func (s *Store) runPath(projectID, runID string) string {
	return filepath.Join(s.runDir(projectID, runID), "run.json")
}

// EventLogPath returns the run's log.jsonl path
func (s *Store) EventLogPath(projectID, runID string) string {
	return filepath.Join(s.runDir(projectID, runID), "log.jsonl")
}

// SnapshotPath returns the run's planSnapshot.json path
func (s *Store) SnapshotPath(projectID, runID string) string {
	return filepath.Join(s.runDir(projectID, runID), "planSnapshot.json")
}

// CreateProject creates a project. An empty name becomes "Untitled Project".
func (s *Store) CreateProject(name string) (*domain.Project, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultProjectName
	}

	var id string
	for {
		id = fmt.Sprintf("proj-%d", s.nextMs())
		err := os.Mkdir(s.projectDir(id), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating project dir: %w", err)
		}
	}

	p := &domain.Project{ProjectID: id, Name: name, CreatedAt: domain.NowISO()}
	if err := s.writeJSON(filepath.Join(s.projectDir(id), "project.json"), p); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.runsDir(id), 0755); err != nil {
		return nil, fmt.Errorf("creating runs dir: %w", err)
	}
	return p, nil
}

// GetProject loads a project
func (s *Store) GetProject(projectID string) (*domain.Project, error) {
	if !validID(projectID) {
		return nil, ErrProjectNotFound
	}
	var p domain.Project
	if err := readJSON(filepath.Join(s.projectDir(projectID), "project.json"), &p); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("reading project %s: %w", projectID, err)
	}
	return &p, nil
}

// ListProjects returns all readable projects, newest first
func (s *Store) ListProjects() ([]*domain.Project, error) {
	entries, err := os.ReadDir(s.projectsDir())
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	var out []*domain.Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var p domain.Project
		if err := readJSON(filepath.Join(s.projectDir(e.Name()), "project.json"), &p); err != nil || p.ProjectID == "" {
			continue
		}
		out = append(out, &p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ProjectID > out[j].ProjectID
	})
	return out, nil
}

// RunInput holds the caller-supplied fields of a new run
type RunInput struct {
	ProjectID     string
	PlanID        string
	Prompt        string
	Framework     string
	RepoID        string
	SelectedPaths []string
	JobID         string
}

// CreateRun creates a queued run and its directory
func (s *Store) CreateRun(in RunInput) (*domain.Run, error) {
	if !validID(in.ProjectID) {
		return nil, fmt.Errorf("%w: project %q", ErrInvalidID, in.ProjectID)
	}

	var id string
	for {
		id = fmt.Sprintf("run-%d", s.nextMs())
		if err := os.MkdirAll(s.runsDir(in.ProjectID), 0755); err != nil {
			return nil, fmt.Errorf("creating runs dir: %w", err)
		}
		err := os.Mkdir(s.runDir(in.ProjectID, id), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating run dir: %w", err)
		}
	}

	selected := in.SelectedPaths
	if selected == nil {
		selected = []string{}
	}
	r := &domain.Run{
		RunID:         id,
		ProjectID:     in.ProjectID,
		PlanID:        in.PlanID,
		Prompt:        in.Prompt,
		Framework:     in.Framework,
		RepoID:        in.RepoID,
		SelectedPaths: selected,
		JobID:         in.JobID,
		Status:        domain.RunQueued,
		CreatedAt:     domain.NowISO(),
	}
	if err := s.writeJSON(s.runPath(in.ProjectID, id), r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRun loads a run
func (s *Store) GetRun(projectID, runID string) (*domain.Run, error) {
	if !validID(projectID) || !validID(runID) {
		return nil, ErrRunNotFound
	}
	var r domain.Run
	if err := readJSON(s.runPath(projectID, runID), &r); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}
	return &r, nil
}

// UpdateRun merges patch into the stored run and returns the result. It
// returns (nil, nil) without writing anything when the run does not exist.
func (s *Store) UpdateRun(projectID, runID string, patch domain.RunPatch) (*domain.Run, error) {
	r, err := s.GetRun(projectID, runID)
	if errors.Is(err, ErrRunNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(r)
	if err := s.writeJSON(s.runPath(projectID, runID), r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the project's readable runs, newest first
func (s *Store) ListRuns(projectID string) ([]*domain.Run, error) {
	if !validID(projectID) {
		return nil, nil
	}
	entries, err := os.ReadDir(s.runsDir(projectID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	var out []*domain.Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var r domain.Run
		if err := readJSON(s.runPath(projectID, e.Name()), &r); err != nil || r.RunID == "" {
			continue
		}
		out = append(out, &r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].RunID > out[j].RunID
	})
	return out, nil
}
