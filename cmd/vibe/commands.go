package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/vibe-builder/internal/app"
	"github.com/hochfrequenz/vibe-builder/internal/domain"
	"github.com/hochfrequenz/vibe-builder/internal/jobstore"
	"github.com/hochfrequenz/vibe-builder/internal/worker"
)

var (
	planFramework string
	applyPaths    []string
	applyProject  string
	applyFromRun  string
	applyFollow   bool
	runLogsTail   int
	jobsState     string
	jobsLimit     int
	jobsQueued    bool
	stopCleanup   bool
	jobLogsFollow bool
	jobLogsTail   int64
)

func init() {
	planCmd := &cobra.Command{
		Use:   "plan PROMPT",
		Short: "Generate and save a plan from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPlan,
	}
	planCmd.Flags().StringVar(&planFramework, "framework", "", "vite-react or nextjs (default: let the model choose)")
	rootCmd.AddCommand(planCmd)

	applyCmd := &cobra.Command{
		Use:   "apply [PLAN_ID]",
		Short: "Queue a build of a saved plan or a previous run's snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runApply,
	}
	applyCmd.Flags().StringSliceVar(&applyPaths, "paths", nil, "only write these plan files")
	applyCmd.Flags().StringVar(&applyProject, "project", "", "record the build as a run of this project")
	applyCmd.Flags().StringVar(&applyFromRun, "from-run", "", "rebuild the snapshot of this run (requires --project)")
	applyCmd.Flags().BoolVarP(&applyFollow, "follow", "f", false, "stream the job log until the job finishes")
	rootCmd.AddCommand(applyCmd)

	// projects
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects",
	}
	projectsCmd.AddCommand(&cobra.Command{
		Use:   "create [NAME]",
		Short: "Create a project",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProjectsCreate,
	})
	projectsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE:  runProjectsList,
	})
	rootCmd.AddCommand(projectsCmd)

	// runs
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect project runs",
	}
	runsCmd.AddCommand(&cobra.Command{
		Use:   "list PROJECT",
		Short: "List runs of a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsList,
	})
	runLogsCmd := &cobra.Command{
		Use:   "logs PROJECT RUN",
		Short: "Show the tail of a run's event log",
		Args:  cobra.ExactArgs(2),
		RunE:  runRunsLogs,
	}
	runLogsCmd.Flags().IntVarP(&runLogsTail, "lines", "n", 200, "number of events to show")
	runsCmd.AddCommand(runLogsCmd)
	rootCmd.AddCommand(runsCmd)

	// jobs
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect queued jobs and running dev servers",
	}
	jobsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List running dev servers (or queued jobs with --queue)",
		RunE:  runJobsList,
	}
	jobsListCmd.Flags().BoolVar(&jobsQueued, "queue", false, "list queue jobs instead of dev servers")
	jobsListCmd.Flags().StringVar(&jobsState, "state", "", "filter queue jobs by state")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum queue jobs to show")
	jobsCmd.AddCommand(jobsListCmd)

	stopCmd := &cobra.Command{
		Use:   "stop JOB",
		Short: "Stop a job's dev server",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsStop,
	}
	stopCmd.Flags().BoolVar(&stopCleanup, "cleanup", false, "also remove the job workspace")
	jobsCmd.AddCommand(stopCmd)

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "status JOB",
		Short: "Show a queued job's state",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsStatus,
	})

	jobLogsCmd := &cobra.Command{
		Use:   "logs JOB",
		Short: "Print a job's log",
		Args:  cobra.ExactArgs(1),
		RunE:  runJobsLogs,
	}
	jobLogsCmd.Flags().BoolVarP(&jobLogsFollow, "follow", "f", false, "keep printing until the job finishes")
	jobLogsCmd.Flags().Int64VarP(&jobLogsTail, "lines", "n", 0, "only print the last N lines (0 prints all)")
	jobsCmd.AddCommand(jobLogsCmd)

	rootCmd.AddCommand(jobsCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	planner := a.Planner()
	if planner == nil {
		return app.ErrPlannerNotConfigured
	}

	var framework domain.Framework
	if planFramework != "" {
		if framework, err = domain.ParseFramework(planFramework); err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()

	plan, err := planner.Plan(ctx, strings.Join(args, " "), framework)
	if err != nil {
		return err
	}
	if err := a.Ledger.SavePlan(plan); err != nil {
		return err
	}

	fmt.Printf("Plan %s (%s)\n", okStyle.Render(plan.PlanID), plan.Framework)
	for _, f := range plan.Files {
		fmt.Printf("  %s (%d bytes)\n", f.Path, len(f.Content))
	}
	return nil
}

func runApply(cmd *cobra.Command, args []string) error {
	data := domain.ApplyPlanData{
		SelectedPaths:     applyPaths,
		ProjectID:         applyProject,
		SnapshotFromRunID: applyFromRun,
	}
	switch {
	case len(args) == 1:
		data.PlanID = args[0]
	case applyFromRun != "":
		data.PlanID = domain.SnapshotPlanID
	default:
		return fmt.Errorf("a plan id or --from-run is required")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	sub, err := worker.Submit(ctx, a.Jobs, a.Ledger, data)
	if err != nil {
		return err
	}

	fmt.Printf("Queued job %s\n", sub.JobID)
	if sub.RunID != "" {
		fmt.Printf("Run %s in project %s\n", sub.RunID, data.ProjectID)
	}
	if !applyFollow {
		return nil
	}
	return followJob(ctx, a.Jobs, sub.JobID)
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var name string
	if len(args) == 1 {
		name = args[0]
	}
	p, err := a.Ledger.CreateProject(name)
	if err != nil {
		return err
	}
	fmt.Printf("Created project %s (%s)\n", okStyle.Render(p.ProjectID), p.Name)
	return nil
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	projects, err := a.Ledger.ListProjects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects")
		return nil
	}

	tw := newTable(os.Stdout, "ID", "NAME", "CREATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ProjectID, truncate(p.Name, 40), relTime(p.CreatedAt))
	}
	return tw.Flush()
}

func runRunsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Ledger.GetProject(args[0]); err != nil {
		return err
	}
	runs, err := a.Ledger.ListRuns(args[0])
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs")
		return nil
	}

	tw := newTable(os.Stdout, "RUN", "STATUS", "FRAMEWORK", "JOB", "CREATED", "PREVIEW / REASON")
	for _, r := range runs {
		detail := r.PreviewURL
		if r.Status == domain.RunFailed {
			detail = truncate(r.FailedReason, 60)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, styleStatus(string(r.Status)), r.Framework, truncate(r.JobID, 12), relTime(r.CreatedAt), detail)
	}
	return tw.Flush()
}

func runRunsLogs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Ledger.GetRun(args[0], args[1]); err != nil {
		return err
	}
	events, err := a.Ledger.TailEvents(args[0], args[1], runLogsTail)
	if err != nil {
		return err
	}
	for _, ev := range events {
		switch ev.Type {
		case domain.EventStatus:
			data, _ := json.Marshal(ev.Data)
			fmt.Printf("%s %s %s\n", ev.Timestamp, queuedStyle.Render("status"), data)
		default:
			fmt.Printf("%s %s\n", ev.Timestamp, ev.Line)
		}
	}
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if jobsQueued {
		jobs, err := a.Jobs.ListJobs(context.Background(), jobsState, jobsLimit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs")
			return nil
		}
		tw := newTable(os.Stdout, "JOB", "NAME", "STATE", "ATTEMPTS", "CREATED", "FINISHED")
		for _, j := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				j.ID, j.Name, styleStatus(j.State), j.Attempts, relTimeOf(j.CreatedAt), relTimeOf(j.FinishedAt))
		}
		return tw.Flush()
	}

	running := a.Repo.List()
	if len(running) == 0 {
		fmt.Println("No running dev servers")
		return nil
	}
	tw := newTable(os.Stdout, "JOB", "PID", "PREVIEW", "STARTED", "PROMPT")
	for _, j := range running {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			j.JobID, j.PID, j.PreviewURL, relTime(j.CreatedAt), truncate(j.Prompt, 40))
	}
	return tw.Flush()
}

func runJobsStop(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Registry.Stop(args[0], stopCleanup)
	if err != nil {
		return err
	}
	fmt.Printf("Stopped %s (pid %d, kill exit %d)\n", res.JobID, res.KilledPID, res.KillResult.Code)
	if res.Cleanup {
		fmt.Printf("Workspace removed: %v\n", res.WorkspaceRemoved)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.Jobs.GetJob(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Job:      %s (%s)\n", job.ID, job.Name)
	fmt.Printf("State:    %s\n", styleStatus(job.State))
	fmt.Printf("Created:  %s\n", relTimeOf(job.CreatedAt))
	if !job.FinishedAt.IsZero() {
		fmt.Printf("Finished: %s (took %s)\n", relTimeOf(job.FinishedAt), job.FinishedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.FailedReason != "" {
		fmt.Printf("Reason:   %s\n", failedStyle.Render(job.FailedReason))
	}
	if url := previewURL(job); url != "" {
		fmt.Printf("Preview:  %s\n", url)
	}
	return nil
}

func runJobsLogs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	if _, err := a.Jobs.GetJob(ctx, args[0]); err != nil {
		return err
	}
	if jobLogsFollow {
		return followJob(ctx, a.Jobs, args[0])
	}
	var entries []domain.LogEntry
	if jobLogsTail > 0 {
		entries, err = a.Jobs.TailLogs(ctx, args[0], jobLogsTail)
	} else {
		entries, err = a.Jobs.ReadLogs(ctx, args[0], 0, -1)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Println(e.Line)
	}
	return nil
}

// followJob prints log lines as they arrive until the job finishes
func followJob(ctx context.Context, jobs *jobstore.Store, jobID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var next int64
	for {
		job, err := jobs.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		entries, err := jobs.ReadLogs(ctx, jobID, next, -1)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Println(e.Line)
		}
		next += int64(len(entries))

		switch job.State {
		case jobstore.StateCompleted:
			fmt.Printf("%s %s\n", okStyle.Render("done"), previewURL(job))
			return nil
		case jobstore.StateFailed:
			return fmt.Errorf("job %s failed: %s", jobID, job.FailedReason)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func previewURL(job *jobstore.Job) string {
	var rv struct {
		PreviewURL string `json:"previewUrl"`
	}
	if len(job.ReturnValue) > 0 {
		json.Unmarshal(job.ReturnValue, &rv)
	}
	return rv.PreviewURL
}
