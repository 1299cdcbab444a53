// Package registry tracks the dev servers started for jobs and stops them.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/ledger"
)

// Repository stores running job entries
type Repository interface {
	// Register inserts or replaces the entry for job.JobID
	Register(job domain.RunningJob)
	Remove(jobID string)
	Get(jobID string) (domain.RunningJob, bool)
	// List returns entries ordered by createdAt
	List() []domain.RunningJob
	Persist() error
	Reload() error
}

// FileRepository keeps entries in memory and mirrors them to a JSON array
// file shared with other processes. Mutations re-read the file first so
// entries written by another process are not lost.
type FileRepository struct {
	path   string
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]domain.RunningJob
}

// NewFileRepository creates a repository backed by path and loads it
func NewFileRepository(path string, logger *slog.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating registry dir: %w", err)
	}
	r := &FileRepository{
		path:   path,
		logger: logger.With("component", "registry"),
		jobs:   make(map[string]domain.RunningJob),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file
func (r *FileRepository) Path() string {
	return r.path
}

func valid(j domain.RunningJob) bool {
	return j.JobID != "" && j.PID > 0 && j.JobDir != ""
}

func (r *FileRepository) readFile() (map[string]domain.RunningJob, error) {
	jobs := make(map[string]domain.RunningJob)

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return jobs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.path, err)
	}

	var entries []domain.RunningJob
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", r.path, err)
	}
	for _, e := range entries {
		if valid(e) {
			jobs[e.JobID] = e
		}
	}
	return jobs, nil
}

// Reload replaces the in-memory entries with the file contents. Entries
// are trusted as-is; a missing file means no entries. On a parse error
// the current entries are kept.
func (r *FileRepository) Reload() error {
	jobs, err := r.readFile()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.jobs = jobs
	r.mu.Unlock()
	return nil
}

// Persist writes the in-memory entries to the file
func (r *FileRepository) Persist() error {
	r.mu.RLock()
	list := r.sortedLocked()
	r.mu.RUnlock()
	return ledger.WriteJSONAtomic(r.path, list)
}

// mutate applies fn to the freshest view of the entries and saves the
// result. Save failures are logged only.
func (r *FileRepository) mutate(fn func(map[string]domain.RunningJob)) {
	r.mu.Lock()
	if fresh, err := r.readFile(); err == nil {
		r.jobs = fresh
	} else {
		r.logger.Warn("registry reload before write failed", "error", err)
	}
	fn(r.jobs)
	list := r.sortedLocked()
	r.mu.Unlock()

	if err := ledger.WriteJSONAtomic(r.path, list); err != nil {
		r.logger.Error("registry save failed", "path", r.path, "error", err)
	}
}

func (r *FileRepository) Register(job domain.RunningJob) {
	r.mutate(func(jobs map[string]domain.RunningJob) {
		jobs[job.JobID] = job
	})
}

func (r *FileRepository) Remove(jobID string) {
	r.mutate(func(jobs map[string]domain.RunningJob) {
		delete(jobs, jobID)
	})
}

func (r *FileRepository) Get(jobID string) (domain.RunningJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[jobID]
	return j, ok
}

func (r *FileRepository) List() []domain.RunningJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *FileRepository) sortedLocked() []domain.RunningJob {
	list := make([]domain.RunningJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		list = append(list, j)
	}
	sort.Slice(list, func(i, k int) bool {
		if list[i].CreatedAt != list[k].CreatedAt {
			return list[i].CreatedAt < list[k].CreatedAt
		}
		return list[i].JobID < list[k].JobID
	})
	return list
}
