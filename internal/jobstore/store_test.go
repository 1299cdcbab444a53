package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_EnqueueClaimComplete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, "applyPlan", map[string]string{"planId": "p1"})
	if err != nil {
		t.Fatal(err)
	}
	second, _ := store.Enqueue(ctx, "applyPlan", map[string]string{"planId": "p2"})

	job, err := store.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.ID != first {
		t.Fatalf("Claim = %+v, want job %s", job, first)
	}
	if job.State != StateActive || job.Attempts != 1 {
		t.Errorf("State = %q Attempts = %d, want active 1", job.State, job.Attempts)
	}

	var data struct {
		PlanID string `json:"planId"`
	}
	if err := json.Unmarshal(job.Data, &data); err != nil || data.PlanID != "p1" {
		t.Errorf("Data = %s, want planId p1", job.Data)
	}

	if err := store.Complete(ctx, job.ID, map[string]any{"ok": true}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetJob(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateCompleted || string(got.ReturnValue) != `{"ok":true}` {
		t.Errorf("got state %q return %s", got.State, got.ReturnValue)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}

	next, _ := store.Claim(ctx)
	if next == nil || next.ID != second {
		t.Fatalf("second Claim = %+v, want %s", next, second)
	}
	if empty, err := store.Claim(ctx); err != nil || empty != nil {
		t.Errorf("Claim on empty queue = %+v, %v; want nil, nil", empty, err)
	}
}

func TestStore_Fail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, "applyPlan", nil)
	store.Claim(ctx)
	if err := store.Fail(ctx, id, "Worker timeout"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetJob(ctx, id)
	if got.State != StateFailed || got.FailedReason != "Worker timeout" {
		t.Errorf("got state %q reason %q", got.State, got.FailedReason)
	}
}

func TestStore_UnknownJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetJob(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob: got %v, want ErrJobNotFound", err)
	}
	if err := store.Complete(ctx, "nope", nil); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Complete: got %v, want ErrJobNotFound", err)
	}
}

func TestStore_RequeueStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	id, _ := store.Enqueue(ctx, "applyPlan", nil)
	store.Claim(ctx)

	store.now = func() time.Time { return base.Add(10 * time.Minute) }
	if n, err := store.RequeueStale(ctx, 20*time.Minute); err != nil || n != 0 {
		t.Fatalf("RequeueStale within timeout = %d, %v; want 0, nil", n, err)
	}

	store.now = func() time.Time { return base.Add(21 * time.Minute) }
	n, err := store.RequeueStale(ctx, 20*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("requeued %d jobs, want 1", n)
	}

	job, _ := store.Claim(ctx)
	if job == nil || job.ID != id || job.Attempts != 2 {
		t.Errorf("got %+v, want job %s on attempt 2", job, id)
	}

	if _, err := store.RequeueStale(ctx, 0); err == nil {
		t.Error("expected error for non-positive age")
	}
}

func TestStore_RequeueStaleKeepsLiveJobOfOtherStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	running, err := New(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer running.Close()
	starting, err := New(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer starting.Close()

	id, _ := running.Enqueue(ctx, "applyPlan", nil)
	if job, _ := running.Claim(ctx); job == nil || job.ID != id {
		t.Fatalf("first store claimed %+v, want %s", job, id)
	}

	n, err := starting.RequeueStale(ctx, 20*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("requeued %d jobs, want 0", n)
	}
	if stolen, _ := starting.Claim(ctx); stolen != nil {
		t.Errorf("second store claimed live job %+v", stolen)
	}
	if got, _ := starting.GetJob(ctx, id); got.State != StateActive {
		t.Errorf("got state %q, want active", got.State)
	}
}

func TestStore_EnqueueWithID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := NewJobID()
	id, err := store.EnqueueWithID(ctx, want, "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != want {
		t.Errorf("got id %q, want %q", id, want)
	}
	if _, err := store.EnqueueWithID(ctx, want, "test", nil); err == nil {
		t.Error("expected error for duplicate id")
	}
	if _, err := store.EnqueueWithID(ctx, "", "test", nil); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestStore_ListJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.Enqueue(ctx, "applyPlan", nil)
	b, _ := store.Enqueue(ctx, "test", nil)
	store.Claim(ctx)

	all, err := store.ListJobs(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != b || all[1].ID != a {
		t.Errorf("ListJobs order wrong: %+v", all)
	}

	waiting, _ := store.ListJobs(ctx, StateWaiting, 10)
	if len(waiting) != 1 || waiting[0].ID != b {
		t.Errorf("ListJobs(waiting) = %+v", waiting)
	}
}

func TestStore_SharedFileAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	producer, err := New(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer producer.Close()
	consumer, err := New(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer consumer.Close()

	id, _ := producer.Enqueue(ctx, "applyPlan", nil)
	job, err := consumer.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("consumer claimed %+v, want %s", job, id)
	}
	if again, _ := producer.Claim(ctx); again != nil {
		t.Errorf("job claimed twice: %+v", again)
	}
}

func TestLogs_AppendAndRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.AppendLog(ctx, "job-1", fmt.Sprintf("line %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	store.AppendLog(ctx, "job-2", "other job")

	tests := []struct {
		name       string
		start, end int64
		want       []string
	}{
		{"all", 0, -1, []string{"line 0", "line 1", "line 2", "line 3", "line 4"}},
		{"head", 0, 1, []string{"line 0", "line 1"}},
		{"last two", -2, -1, []string{"line 3", "line 4"}},
		{"clamped end", 3, 100, []string{"line 3", "line 4"}},
		{"clamped start", -100, 0, []string{"line 0"}},
		{"start past end", 4, 2, nil},
		{"start past len", 10, 20, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ReadLogs(ctx, "job-1", tt.start, tt.end)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].Line != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, got[i].Line, tt.want[i])
				}
			}
		})
	}

	tail, _ := store.TailLogs(ctx, "job-1", 1)
	if len(tail) != 1 || tail[0].Line != "line 4" {
		t.Errorf("TailLogs = %+v", tail)
	}
	if tail[0].T == 0 {
		t.Error("timestamp not recorded")
	}
}

func TestLogs_Expiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	store.AppendLog(ctx, "old", "a")

	store.now = func() time.Time { return base.Add(50 * time.Minute) }
	store.AppendLog(ctx, "fresh", "b")

	// "old" expires at base+1h, "fresh" at base+1h50m
	store.now = func() time.Time { return base.Add(61 * time.Minute) }
	if got, _ := store.ReadLogs(ctx, "old", 0, -1); len(got) != 0 {
		t.Errorf("expired log still readable: %+v", got)
	}

	removed, err := store.ExpireLogs(ctx, base.Add(61*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed %d entries, want 1", removed)
	}
	if got, _ := store.ReadLogs(ctx, "fresh", 0, -1); len(got) != 1 {
		t.Errorf("fresh log lost: %+v", got)
	}
}

func TestLogs_AppendRefreshesExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	store.AppendLog(ctx, "job", "a")
	store.now = func() time.Time { return base.Add(45 * time.Minute) }
	store.AppendLog(ctx, "job", "b")

	removed, _ := store.ExpireLogs(ctx, base.Add(70*time.Minute))
	if removed != 0 {
		t.Errorf("removed %d entries, want 0 after refresh", removed)
	}
}
