// Package worker claims jobs from the job store and runs them: applyPlan
// jobs go through the build pipeline, test jobs only echo their payload.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/jobstore"
	"github.com/hochfrequenz/vibe-builder/internal/ledger"
	"github.com/hochfrequenz/vibe-builder/internal/pipeline"
	"github.com/hochfrequenz/vibe-builder/internal/registry"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrency  = 1
	DefaultTimeout      = 20 * time.Minute
	DefaultPollInterval = time.Second

	// StaleGrace is added to the timeout before an active job counts as
	// abandoned, leaving the owning worker time to record the timeout.
	StaleGrace = time.Minute
)

// ErrTimeout is the failure reason of a job that ran past the timeout
var ErrTimeout = errors.New("Worker timeout")

// Builder runs the build pipeline
type Builder interface {
	Run(ctx context.Context, req pipeline.Request, sink pipeline.LogSink) (*pipeline.Result, error)
}

// StatusEvent reports a job state change
type StatusEvent struct {
	JobID        string `json:"jobId"`
	ProjectID    string `json:"projectId,omitempty"`
	RunID        string `json:"runId,omitempty"`
	State        string `json:"state"`
	Step         string `json:"step,omitempty"`
	PreviewURL   string `json:"previewUrl,omitempty"`
	FailedReason string `json:"failedReason,omitempty"`
}

// Config holds worker settings
type Config struct {
	Concurrency  int
	Timeout      time.Duration
	PollInterval time.Duration
	WorkspaceDir string
}

// Worker processes queued jobs
type Worker struct {
	cfg      Config
	jobs     *jobstore.Store
	ledger   *ledger.Store
	builder  Builder
	registry registry.Repository
	slots    *semaphore.Weighted
	logger   *slog.Logger

	mu       sync.Mutex
	onStatus func(StatusEvent)
}

// New creates a worker. Zero config values get defaults.
func New(cfg Config, jobs *jobstore.Store, store *ledger.Store, builder Builder, reg registry.Repository, logger *slog.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		cfg:      cfg,
		jobs:     jobs,
		ledger:   store,
		builder:  builder,
		registry: reg,
		slots:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:   logger.With("component", "worker"),
	}
	return w
}

// SetOnStatus sets the callback for job state changes
func (w *Worker) SetOnStatus(fn func(StatusEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onStatus = fn
}

func (w *Worker) emit(ev StatusEvent) {
	w.mu.Lock()
	fn := w.onStatus
	w.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Run polls for jobs until ctx is done, then waits for in-flight jobs.
// Jobs abandoned by a crashed worker are requeued first. Jobs younger than
// the timeout may belong to another live worker and are left alone.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.jobs.RequeueStale(ctx, w.cfg.Timeout+StaleGrace); err != nil {
		return err
	} else if n > 0 {
		w.logger.Info("requeued stalled jobs", "count", n)
	}

	w.logger.Info("worker started",
		"concurrency", w.cfg.Concurrency, "timeout", w.cfg.Timeout, "workspace", w.cfg.WorkspaceDir)

	var wg sync.WaitGroup
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.dispatch(ctx, &wg)

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping, waiting for running jobs")
			wg.Wait()
			return nil
		case <-ticker.C:
		}
	}
}

// dispatch claims jobs while slots are free
func (w *Worker) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	for ctx.Err() == nil && w.slots.TryAcquire(1) {
		job, err := w.jobs.Claim(ctx)
		if err != nil || job == nil {
			w.slots.Release(1)
			if err != nil && ctx.Err() == nil {
				w.logger.Error("claim failed", "error", err)
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.slots.Release(1)
			w.Process(ctx, job)
		}()
	}
}

// Process runs one claimed job under the configured timeout and records
// the outcome in the job store.
func (w *Worker) Process(ctx context.Context, job *jobstore.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	w.logger.Info("job started", "job", job.ID, "name", job.Name)
	start := time.Now()

	result, err := w.handle(jobCtx, job)
	if err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}

	// The job context may be done; bookkeeping must still land
	bg := context.WithoutCancel(ctx)
	if err != nil {
		w.logger.Warn("job failed", "job", job.ID, "duration", time.Since(start), "error", err)
		if ferr := w.jobs.Fail(bg, job.ID, err.Error()); ferr != nil {
			w.logger.Error("recording failure", "job", job.ID, "error", ferr)
		}
		return
	}

	w.logger.Info("job completed", "job", job.ID, "duration", time.Since(start))
	if cerr := w.jobs.Complete(bg, job.ID, result); cerr != nil {
		w.logger.Error("recording completion", "job", job.ID, "error", cerr)
	}
}

func (w *Worker) handle(ctx context.Context, job *jobstore.Job) (any, error) {
	switch job.Name {
	case domain.JobApplyPlan:
		var data domain.ApplyPlanData
		if err := json.Unmarshal(job.Data, &data); err != nil {
			return nil, fmt.Errorf("applyPlan: invalid job data: %w", err)
		}
		data.JobID = job.ID
		return w.applyPlan(ctx, job.ID, data)
	case domain.JobTest:
		return w.runTest(ctx, job)
	default:
		return nil, fmt.Errorf("unknown job name %q", job.Name)
	}
}

func (w *Worker) runTest(ctx context.Context, job *jobstore.Job) (any, error) {
	log := w.jobLog(job.ID, "", "")
	log(fmt.Sprintf("Worker started: jobId=%s name=%s", job.ID, job.Name))
	log("Payload: " + string(job.Data))
	log("Worker done.")
	return map[string]bool{"ok": true}, nil
}

// jobLog returns a sink writing to the job log and, for run-owned jobs,
// to the run's event log. Write failures are logged, never returned.
func (w *Worker) jobLog(jobID, projectID, runID string) pipeline.LogSink {
	return func(line string) {
		if err := w.jobs.AppendLog(context.Background(), jobID, line); err != nil {
			w.logger.Warn("job log append failed", "job", jobID, "error", err)
		}
		if projectID != "" && runID != "" && w.ledger != nil {
			if err := w.ledger.AppendEvent(projectID, runID, domain.EventLog, line, nil); err != nil {
				w.logger.Warn("run log append failed", "run", runID, "error", err)
			}
		}
	}
}
