package registry

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/vibe-builder/internal/procrunner"
)

// ErrJobNotFound is returned when stopping a job with no registry entry
var ErrJobNotFound = errors.New("job not found")

// StopResult describes what Stop did
type StopResult struct {
	OK               bool                   `json:"ok"`
	JobID            string                 `json:"jobId"`
	KilledPID        int                    `json:"killedPid"`
	PreviewURL       string                 `json:"previewUrl"`
	Cleanup          bool                   `json:"cleanup"`
	WorkspaceRemoved bool                   `json:"workspaceRemoved"`
	KillResult       *procrunner.KillResult `json:"killResult"`
}

// Manager stops and prunes registered dev servers
type Manager struct {
	repo          Repository
	workspaceRoot string
	logger        *slog.Logger

	kill      func(pid int) (*procrunner.KillResult, error)
	alive     func(pid int) bool
	removeAll func(path string) error
}

// NewManager creates a manager. When workspaceRoot is set, cleanup only
// removes directories inside it.
func NewManager(repo Repository, workspaceRoot string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:          repo,
		workspaceRoot: workspaceRoot,
		logger:        logger.With("component", "registry"),
		kill:          procrunner.KillTree,
		alive:         procrunner.Alive,
		removeAll:     os.RemoveAll,
	}
}

// Repository returns the underlying repository
func (m *Manager) Repository() Repository {
	return m.repo
}

// Stop kills the job's process tree, optionally removes its workspace, and
// drops the entry. The entry is removed even when kill or cleanup fail.
func (m *Manager) Stop(jobID string, cleanup bool) (*StopResult, error) {
	job, ok := m.repo.Get(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}

	res := &StopResult{
		OK:         true,
		JobID:      job.JobID,
		KilledPID:  job.PID,
		PreviewURL: job.PreviewURL,
		Cleanup:    cleanup,
	}

	kr, err := m.kill(job.PID)
	if err != nil {
		kr = &procrunner.KillResult{Code: 1, Output: err.Error()}
	}
	res.KillResult = kr
	m.logger.Info("stopped dev server", "job", jobID, "pid", job.PID, "code", kr.Code)

	if cleanup && job.JobDir != "" {
		res.WorkspaceRemoved = m.removeWorkspace(job.JobDir)
	}

	m.repo.Remove(jobID)
	return res, nil
}

func (m *Manager) removeWorkspace(dir string) bool {
	if m.workspaceRoot != "" && !within(m.workspaceRoot, dir) {
		m.logger.Warn("refusing to remove workspace outside root", "dir", dir, "root", m.workspaceRoot)
		return false
	}
	if err := m.removeAll(dir); err != nil {
		m.logger.Warn("workspace cleanup failed", "dir", dir, "error", err)
		return false
	}
	return true
}

func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// PruneDead removes entries whose process no longer exists and returns
// their job ids.
func (m *Manager) PruneDead() []string {
	var pruned []string
	for _, job := range m.repo.List() {
		if m.alive(job.PID) {
			continue
		}
		m.repo.Remove(job.JobID)
		pruned = append(pruned, job.JobID)
	}
	if len(pruned) > 0 {
		m.logger.Info("pruned dead dev servers", "jobs", pruned)
	}
	return pruned
}
