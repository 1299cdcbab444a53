//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/vibe-builder/internal/jobstore"
)

func TestCLI_Help(t *testing.T) {
	_, configPath := TempRoot(t)
	out, err := runCLI(t, configPath, "--help")
	if err != nil {
		t.Fatalf("help failed: %v\n%s", err, out)
	}
	for _, sub := range []string{"serve", "worker", "plan", "apply", "projects", "runs", "jobs"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q", sub)
		}
	}
}

func TestCLI_ProjectsCreateAndList(t *testing.T) {
	root, configPath := TempRoot(t)

	out, err := runCLI(t, configPath, "projects", "create", "landing page")
	if err != nil {
		t.Fatalf("create failed: %v\n%s", err, out)
	}
	id := regexp.MustCompile(`proj-\d+`).FindString(out)
	if id == "" {
		t.Fatalf("no project id in %q", out)
	}

	if _, err := os.Stat(filepath.Join(root, "data", "projects", id, "project.json")); err != nil {
		t.Errorf("project.json not written: %v", err)
	}

	out, err = runCLI(t, configPath, "projects", "list")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "landing page") {
		t.Errorf("list output missing project:\n%s", out)
	}
}

func TestCLI_ApplyQueuesJob(t *testing.T) {
	root, configPath := TempRoot(t)

	planID := "11111111-2222-3333-4444-555555555555"
	plan := map[string]any{
		"planId":    planID,
		"framework": "vite-react",
		"prompt":    "hello",
		"files":     []map[string]string{{"path": "src/App.jsx", "content": "export default function App() { return null }"}},
	}
	data, _ := json.Marshal(plan)
	plansDir := filepath.Join(root, "data", "plans")
	os.MkdirAll(plansDir, 0755)
	if err := os.WriteFile(filepath.Join(plansDir, planID+".json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, configPath, "apply", planID)
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Queued job") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = runCLI(t, configPath, "jobs", "list", "--queue")
	if err != nil {
		t.Fatalf("jobs list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "applyPlan") || !strings.Contains(out, "waiting") {
		t.Errorf("queued job not listed:\n%s", out)
	}
}

func TestCLI_ApplyUnknownPlan(t *testing.T) {
	_, configPath := TempRoot(t)
	out, err := runCLI(t, configPath, "apply", "does-not-exist")
	if err == nil {
		t.Fatalf("expected failure, got:\n%s", out)
	}
	if !strings.Contains(out, "plan not found") {
		t.Errorf("got %q, want plan not found", out)
	}
}

func TestCLI_PlanWithoutKey(t *testing.T) {
	_, configPath := TempRoot(t)
	out, err := runCLI(t, configPath, "plan", "a todo app")
	if err == nil {
		t.Fatalf("expected failure, got:\n%s", out)
	}
	if !strings.Contains(out, "OPENAI_API_KEY") {
		t.Errorf("got %q, want planner configuration error", out)
	}
}

func TestCLI_JobsStopUnknown(t *testing.T) {
	_, configPath := TempRoot(t)
	out, err := runCLI(t, configPath, "jobs", "stop", "nope")
	if err == nil || !strings.Contains(out, "job not found") {
		t.Errorf("got err=%v out=%q, want job not found", err, out)
	}
}

func TestCLI_JobLogsTail(t *testing.T) {
	root, configPath := TempRoot(t)
	ctx := context.Background()

	store, err := jobstore.New(filepath.Join(root, "jobs.db"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.Enqueue(ctx, "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"first", "second", "third"} {
		if err := store.AppendLog(ctx, id, line); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	out, err := runCLI(t, configPath, "jobs", "logs", id, "-n", "2")
	if err != nil {
		t.Fatalf("jobs logs failed: %v\n%s", err, out)
	}
	if got := strings.TrimSpace(out); got != "second\nthird" {
		t.Errorf("got %q, want last two lines", got)
	}

	out, err = runCLI(t, configPath, "jobs", "logs", id)
	if err != nil {
		t.Fatalf("jobs logs failed: %v\n%s", err, out)
	}
	if got := strings.TrimSpace(out); got != "first\nsecond\nthird" {
		t.Errorf("got %q, want all lines", got)
	}
}
