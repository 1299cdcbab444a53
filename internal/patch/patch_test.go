package patch

import (
	"errors"
	"strings"
	"testing"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
)

func TestIsSafeRelPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/App.jsx", true},
		{"index.html", true},
		{"app/page.js", true},
		{"./src/main.jsx", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc/passwd", false},
		{"src/../../x", false},
		{"foo..bar", false},
		{"/etc/passwd", false},
		{`\windows\system32`, false},
		{`C:\Users\x`, false},
		{"c:/tmp/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSafeRelPath(tt.path); got != tt.want {
				t.Errorf("IsSafeRelPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSanitizeSelection(t *testing.T) {
	got := SanitizeSelection([]string{"a", "../b", "/c", "d/e", "a"})
	want := []string{"a", "d/e"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}

	if got := SanitizeSelection([]string{"../x", ""}); got != nil {
		t.Errorf("got %q, want nil when nothing survives", got)
	}
	if got := SanitizeSelection(nil); got != nil {
		t.Errorf("got %q, want nil for nil input", got)
	}
}

func testPlan() *domain.Plan {
	return &domain.Plan{
		PlanID:    "p1",
		Framework: domain.FrameworkViteReact,
		Files: []domain.PlanFile{
			{Path: "a.txt", Content: "A"},
			{Path: "../evil", Content: "X"},
			{Path: "b.txt", Content: "B"},
		},
	}
}

func TestSelectFiles_NoSelectionTakesSafeFiles(t *testing.T) {
	files, err := SelectFiles(testPlan(), nil)
	if err != nil {
		t.Fatalf("SelectFiles failed: %v", err)
	}
	if len(files) != 2 || files[0].Path != "a.txt" || files[1].Path != "b.txt" {
		t.Errorf("got %+v, want a.txt and b.txt", files)
	}
}

func TestSelectFiles_Intersection(t *testing.T) {
	files, err := SelectFiles(testPlan(), []string{"b.txt", "missing.txt"})
	if err != nil {
		t.Fatalf("SelectFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "b.txt" {
		t.Errorf("got %+v, want only b.txt", files)
	}
}

func TestSelectFiles_EmptyIntersection(t *testing.T) {
	_, err := SelectFiles(testPlan(), []string{"missing.txt"})
	if !errors.Is(err, ErrNoFilesSelected) {
		t.Errorf("got %v, want ErrNoFilesSelected", err)
	}
}

func TestSelectFiles_SelectionCannotReachUnsafePlanPath(t *testing.T) {
	_, err := SelectFiles(testPlan(), []string{"../evil"})
	if !errors.Is(err, ErrNoFilesSelected) {
		t.Errorf("got %v, want ErrNoFilesSelected", err)
	}
}

func TestApply_OnlyAllowedPaths(t *testing.T) {
	allowed := []string{"src/App.jsx", "src/main.jsx"}
	proposed := []domain.PlanFile{
		{Path: "src/App.jsx", Content: "fixed"},
		{Path: "package.json", Content: "{}"},
		{Path: "../outside", Content: "x"},
		{Path: "src/App.jsx", Content: "fixed again"},
	}

	got := Apply(allowed, proposed)
	if len(got) != 1 {
		t.Fatalf("got %d files, want 1: %+v", len(got), got)
	}
	if got[0].Path != "src/App.jsx" || got[0].Content != "fixed again" {
		t.Errorf("got %+v, want src/App.jsx with later content", got[0])
	}
}

func TestApply_EmptyProposal(t *testing.T) {
	if got := Apply([]string{"a"}, nil); len(got) != 0 {
		t.Errorf("got %+v, want empty", got)
	}
}

func TestUnifiedDiff(t *testing.T) {
	diff := UnifiedDiff("one\ntwo\n", "one\nthree\n", "src/App.jsx")

	for _, want := range []string{"--- a/src/App.jsx", "+++ b/src/App.jsx", "-two", "+three"} {
		if !strings.Contains(diff, want) {
			t.Errorf("diff missing %q:\n%s", want, diff)
		}
	}
	if UnifiedDiff("same\n", "same\n", "x") != "" {
		t.Error("expected empty diff for identical input")
	}
}
