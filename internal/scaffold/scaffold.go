// Package scaffold creates a fresh project skeleton for a supported
// framework and writes generated files into it.
package scaffold

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/procrunner"
)

// ErrUnsupportedFramework is returned for frameworks without a template
var ErrUnsupportedFramework = domain.ErrUnsupportedFramework

// Template describes how to materialize one framework
type Template struct {
	Label string
	// Subdir is created under the base directory and becomes the work
	// directory. Empty means the base directory itself.
	Subdir string
	Name   string
	Args   []string
}

// Templates maps each supported framework to its scaffolding command
var Templates = map[domain.Framework]Template{
	domain.FrameworkViteReact: {
		Label: "Vite React template",
		Name:  "npm",
		Args:  []string{"create", "vite@latest", ".", "--", "--template", "react"},
	},
	domain.FrameworkNextJS: {
		Label:  "Next.js (create-next-app)",
		Subdir: "next-app",
		Name:   "npx",
		Args: []string{
			"create-next-app@latest", ".",
			"--js", "--eslint", "--app",
			"--no-tailwind", "--no-src-dir", "--no-import-alias",
		},
	},
}

// Materializer runs framework scaffolding commands
type Materializer struct {
	runner procrunner.Runner
}

// NewMaterializer creates a materializer backed by runner
func NewMaterializer(runner procrunner.Runner) *Materializer {
	return &Materializer{runner: runner}
}

// Scaffold creates the project skeleton under baseDir and returns the
// directory all later steps must run in.
func (m *Materializer) Scaffold(ctx context.Context, baseDir string, framework domain.Framework, log procrunner.LineFunc) (string, error) {
	tmpl, ok := Templates[framework]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFramework, framework)
	}

	workDir := baseDir
	if tmpl.Subdir != "" {
		workDir = filepath.Join(baseDir, tmpl.Subdir)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}

	if log != nil {
		log(fmt.Sprintf("Scaffold: %s...", tmpl.Label))
	}
	if _, err := m.runner.Run(ctx, tmpl.Name, tmpl.Args, workDir, log); err != nil {
		return "", err
	}
	return workDir, nil
}

// WriteFile writes content to root/rel, creating parent directories and
// overwriting any existing file.
func WriteFile(root, rel, content string) error {
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("creating parent dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// ReadTextIfExists returns the content of root/rel, or "" when the file is
// missing or unreadable.
func ReadTextIfExists(root, rel string) string {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return ""
	}
	return string(data)
}
