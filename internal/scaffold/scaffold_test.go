package scaffold

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/procrunner"
)

type call struct {
	name string
	args []string
	dir  string
}

type fakeRunner struct {
	calls []call
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, dir string, onLine procrunner.LineFunc) (*procrunner.Result, error) {
	f.calls = append(f.calls, call{name: name, args: args, dir: dir})
	if f.err != nil {
		return nil, f.err
	}
	return &procrunner.Result{}, nil
}

func TestScaffold_ViteReactUsesBaseDir(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	m := NewMaterializer(runner)

	var logs []string
	workDir, err := m.Scaffold(context.Background(), base, domain.FrameworkViteReact, func(l string) { logs = append(logs, l) })
	if err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}
	if workDir != base {
		t.Errorf("got work dir %q, want %q", workDir, base)
	}
	if len(runner.calls) != 1 || runner.calls[0].name != "npm" || runner.calls[0].dir != base {
		t.Errorf("unexpected calls: %+v", runner.calls)
	}
	if len(logs) != 1 || logs[0] != "Scaffold: Vite React template..." {
		t.Errorf("got logs %q", logs)
	}
}

func TestScaffold_NextJSUsesSubdir(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	m := NewMaterializer(runner)

	workDir, err := m.Scaffold(context.Background(), base, domain.FrameworkNextJS, nil)
	if err != nil {
		t.Fatalf("Scaffold failed: %v", err)
	}
	want := filepath.Join(base, "next-app")
	if workDir != want {
		t.Errorf("got work dir %q, want %q", workDir, want)
	}
	if info, err := os.Stat(want); err != nil || !info.IsDir() {
		t.Errorf("subdir not created: %v", err)
	}
	if runner.calls[0].name != "npx" || runner.calls[0].dir != want {
		t.Errorf("unexpected call: %+v", runner.calls[0])
	}
}

func TestScaffold_UnsupportedFramework(t *testing.T) {
	runner := &fakeRunner{}
	m := NewMaterializer(runner)

	_, err := m.Scaffold(context.Background(), t.TempDir(), domain.Framework("svelte"), nil)
	if !errors.Is(err, ErrUnsupportedFramework) {
		t.Fatalf("got %v, want ErrUnsupportedFramework", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("got %d subprocess calls, want 0", len(runner.calls))
	}
}

func TestScaffold_RunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: &procrunner.ExitError{Command: "npm", ExitCode: 1, Output: "boom"}}
	m := NewMaterializer(runner)

	_, err := m.Scaffold(context.Background(), t.TempDir(), domain.FrameworkViteReact, nil)
	var exitErr *procrunner.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("got %v, want *procrunner.ExitError", err)
	}
}

func TestWriteFile_CreatesParents(t *testing.T) {
	root := t.TempDir()

	if err := WriteFile(root, "src/components/App.jsx", "one"); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(root, "src/components/App.jsx", "two"); err != nil {
		t.Fatalf("WriteFile overwrite failed: %v", err)
	}

	if got := ReadTextIfExists(root, "src/components/App.jsx"); got != "two" {
		t.Errorf("got content %q, want %q", got, "two")
	}
}

func TestReadTextIfExists_Missing(t *testing.T) {
	if got := ReadTextIfExists(t.TempDir(), "nope.txt"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
