// Package pipeline turns a set of plan files into a running dev server:
// scaffold, write files, install, build with one auto-fix attempt, start.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/llm"
	"github.com/hochfrequenz/vibe-builder/internal/patch"
	"github.com/hochfrequenz/vibe-builder/internal/procrunner"
	"github.com/hochfrequenz/vibe-builder/internal/scaffold"
)

// State is a build pipeline step
type State string

const (
	StateMaterializing  State = "materializing"
	StateWritingFiles   State = "writing_files"
	StateInstalling     State = "installing"
	StateBuilding       State = "building"
	StateAutofixing     State = "autofixing"
	StateRebuilding     State = "rebuilding"
	StateStartingServer State = "starting_server"
	StateRunning        State = "running"
	StateFailed         State = "failed"
)

const (
	DefaultPortMin = 5200
	DefaultPortMax = 5399
)

var errNoFixer = errors.New("no auto-fix collaborator configured")

// StepError names the step a pipeline run failed in
type StepError struct {
	Step State
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// LogSink receives human readable progress lines
type LogSink func(line string)

// Launcher starts the dev server detached and returns its pid
type Launcher interface {
	Start(name string, args []string, dir string) (int, error)
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(name string, args []string, dir string) (int, error)

func (f LauncherFunc) Start(name string, args []string, dir string) (int, error) {
	return f(name, args, dir)
}

// PortPicker chooses the dev server port
type PortPicker func() int

// RandomPort picks uniformly from [lo, hi]
func RandomPort(lo, hi int) PortPicker {
	if hi < lo {
		hi = lo
	}
	return func() int {
		return lo + rand.IntN(hi-lo+1)
	}
}

// Config holds the pipeline collaborators. Zero fields get defaults.
type Config struct {
	Runner   procrunner.Runner
	Fixer    llm.Fixer
	Launcher Launcher
	Ports    PortPicker
	Logger   *slog.Logger
}

// Request describes one pipeline run
type Request struct {
	BaseDir   string
	Framework domain.Framework
	Prompt    string
	Files     []domain.PlanFile
	// OnState, if set, is called on every state transition
	OnState func(State)
}

// Result describes the started dev server
type Result struct {
	PID        int
	Port       int
	PreviewURL string
	WorkDir    string
}

// Pipeline executes build requests. Safe for concurrent use when its
// collaborators are.
type Pipeline struct {
	runner       procrunner.Runner
	materializer *scaffold.Materializer
	fixer        llm.Fixer
	launcher     Launcher
	ports        PortPicker
	logger       *slog.Logger
}

// New creates a pipeline
func New(cfg Config) *Pipeline {
	if cfg.Runner == nil {
		cfg.Runner = procrunner.NewOSRunner()
	}
	if cfg.Launcher == nil {
		cfg.Launcher = LauncherFunc(procrunner.StartDetached)
	}
	if cfg.Ports == nil {
		cfg.Ports = RandomPort(DefaultPortMin, DefaultPortMax)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		runner:       cfg.Runner,
		materializer: scaffold.NewMaterializer(cfg.Runner),
		fixer:        cfg.Fixer,
		launcher:     cfg.Launcher,
		ports:        cfg.Ports,
		logger:       cfg.Logger.With("component", "pipeline"),
	}
}

type run struct {
	*Pipeline
	req     Request
	log     LogSink
	workDir string
}

func (r *run) enter(s State) {
	if r.req.OnState != nil {
		r.req.OnState(s)
	}
}

func (r *run) fail(step State, err error) error {
	r.enter(StateFailed)
	return &StepError{Step: step, Err: err}
}

// Run executes the pipeline. Nothing is rolled back on failure; the
// workspace is left for inspection.
func (p *Pipeline) Run(ctx context.Context, req Request, sink LogSink) (*Result, error) {
	if sink == nil {
		sink = func(string) {}
	}
	r := &run{Pipeline: p, req: req, log: sink}

	r.enter(StateMaterializing)
	workDir, err := p.materializer.Scaffold(ctx, req.BaseDir, req.Framework, procrunner.LineFunc(sink))
	if err != nil {
		return nil, r.fail(StateMaterializing, err)
	}
	r.workDir = workDir

	r.enter(StateWritingFiles)
	if err := r.writeFiles(); err != nil {
		return nil, r.fail(StateWritingFiles, err)
	}

	r.enter(StateInstalling)
	sink("Install: npm install ...")
	if _, err := p.runner.Run(ctx, "npm", []string{"install"}, workDir, procrunner.LineFunc(sink)); err != nil {
		return nil, r.fail(StateInstalling, err)
	}

	if err := r.build(ctx); err != nil {
		return nil, err
	}

	r.enter(StateStartingServer)
	port := p.ports()
	sink(fmt.Sprintf("Run: starting dev server on port %d ...", port))
	pid, err := p.launcher.Start("npm", []string{"run", "dev", "--", "--port", fmt.Sprint(port)}, workDir)
	if err != nil {
		return nil, r.fail(StateStartingServer, err)
	}

	r.enter(StateRunning)
	return &Result{
		PID:        pid,
		Port:       port,
		PreviewURL: fmt.Sprintf("http://127.0.0.1:%d/", port),
		WorkDir:    workDir,
	}, nil
}

func (r *run) writeFiles() error {
	r.log(fmt.Sprintf("applyPlan: writing %d file(s)...", len(r.req.Files)))
	for _, f := range r.req.Files {
		if !patch.IsSafeRelPath(f.Path) {
			return fmt.Errorf("refusing unsafe path %q", f.Path)
		}
		if err := scaffold.WriteFile(r.workDir, f.Path, f.Content); err != nil {
			return err
		}
		r.log("Wrote: " + f.Path)
	}
	return nil
}

// build runs the production build, with at most one auto-fix and one
// rebuild. Only a non-zero exit qualifies for auto-fix.
func (r *run) build(ctx context.Context) error {
	r.enter(StateBuilding)
	r.log("Build: npm run build ...")
	_, err := r.runner.Run(ctx, "npm", []string{"run", "build"}, r.workDir, procrunner.LineFunc(r.log))
	if err == nil {
		return nil
	}

	var exitErr *procrunner.ExitError
	if !errors.As(err, &exitErr) {
		return r.fail(StateBuilding, err)
	}

	r.enter(StateAutofixing)
	if err := r.autofix(ctx, exitErr.Output); err != nil {
		return r.fail(StateAutofixing, err)
	}

	r.enter(StateRebuilding)
	r.log("Retry build...")
	if _, err := r.runner.Run(ctx, "npm", []string{"run", "build"}, r.workDir, procrunner.LineFunc(r.log)); err != nil {
		return r.fail(StateRebuilding, err)
	}
	return nil
}

func (r *run) autofix(ctx context.Context, buildOutput string) error {
	r.log("Build failed. Attempting one auto-fix (patch allowed files)...")
	if r.fixer == nil {
		return errNoFixer
	}

	allowed := make([]string, len(r.req.Files))
	current := make([]domain.PlanFile, len(r.req.Files))
	for i, f := range r.req.Files {
		allowed[i] = f.Path
		current[i] = domain.PlanFile{Path: f.Path, Content: scaffold.ReadTextIfExists(r.workDir, f.Path)}
	}

	resp, err := r.fixer.Fix(ctx, llm.FixRequest{
		Framework:    r.req.Framework,
		Prompt:       r.req.Prompt,
		AllowedPaths: allowed,
		CurrentFiles: current,
		BuildOutput:  buildOutput,
	})
	if err != nil {
		return err
	}

	for _, f := range patch.Apply(allowed, resp.Files) {
		before := scaffold.ReadTextIfExists(r.workDir, f.Path)
		if err := scaffold.WriteFile(r.workDir, f.Path, f.Content); err != nil {
			return err
		}
		r.log("Patched: " + f.Path)
		r.logger.Debug("auto-fix patch", "path", f.Path, "diff", patch.UnifiedDiff(before, f.Content, f.Path))
	}
	return nil
}
