package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseFramework(t *testing.T) {
	tests := []struct {
		input   string
		want    Framework
		wantErr bool
	}{
		{"vite-react", FrameworkViteReact, false},
		{"nextjs", FrameworkNextJS, false},
		{"svelte", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFramework(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFramework(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFramework(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestApplyPlanData_Validate(t *testing.T) {
	tests := []struct {
		name string
		data ApplyPlanData
		want error
	}{
		{"plan", ApplyPlanData{PlanID: "p1"}, nil},
		{"missing plan", ApplyPlanData{}, ErrPlanIDRequired},
		{"snapshot without ids", ApplyPlanData{PlanID: SnapshotPlanID}, ErrSnapshotSource},
		{"snapshot without run", ApplyPlanData{PlanID: SnapshotPlanID, ProjectID: "proj-1"}, ErrSnapshotSource},
		{"snapshot", ApplyPlanData{PlanID: SnapshotPlanID, ProjectID: "proj-1", SnapshotFromRunID: "run-1"}, nil},
	}

	for _, tt := range tests {
		if got := tt.data.Validate(); got != tt.want {
			t.Errorf("%s: Validate() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunPatch_Apply(t *testing.T) {
	run := &Run{RunID: "run-1", Status: RunQueued, PreviewURL: "keep"}
	status := RunFailed
	reason := "boom"

	RunPatch{Status: &status, FailedReason: &reason}.Apply(run)

	if run.Status != RunFailed {
		t.Errorf("Status = %q, want %q", run.Status, RunFailed)
	}
	if run.FailedReason != "boom" {
		t.Errorf("FailedReason = %q, want boom", run.FailedReason)
	}
	if run.PreviewURL != "keep" {
		t.Errorf("PreviewURL = %q, want untouched", run.PreviewURL)
	}
	if run.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil", *run.EndedAt)
	}
}

func TestRun_JSONFieldNames(t *testing.T) {
	run := Run{RunID: "run-1", ProjectID: "proj-1", Status: RunQueued}
	data, err := json.Marshal(run)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"runId", "projectId", "planId", "selectedPaths", "jobId", "status", "createdAt", "endedAt", "previewUrl", "failedReason"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("run.json missing field %q", key)
		}
	}
	if raw["endedAt"] != nil {
		t.Errorf("endedAt = %v, want null", raw["endedAt"])
	}
}

func TestFormatTime_SortsLexically(t *testing.T) {
	early := FormatTime(time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC))
	late := FormatTime(time.Date(2025, 1, 2, 3, 4, 5, 70_000_000, time.UTC))

	if early != "2025-01-02T03:04:05.006Z" {
		t.Errorf("FormatTime = %q", early)
	}
	if !(early < late) {
		t.Errorf("%q should sort before %q", early, late)
	}
}

func TestNewSnapshot_CopiesFiles(t *testing.T) {
	files := []PlanFile{{Path: "src/App.jsx", Content: "a"}}
	snap := NewSnapshot(FrameworkViteReact, "todo app", files)
	files[0].Content = "changed"

	if snap.PlanID != SnapshotPlanID {
		t.Errorf("PlanID = %q, want %q", snap.PlanID, SnapshotPlanID)
	}
	if snap.Files[0].Content != "a" {
		t.Errorf("snapshot shares backing array with input")
	}
}
