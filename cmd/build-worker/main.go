// cmd/build-worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/vibe-builder/internal/app"
)

var (
	configPath  string
	concurrency int
	debug       bool
)

// Default config file locations for system installs (checked in order)
var defaultConfigPaths = []string{
	"/etc/vibe-builder/config.toml",
	"/etc/vibe-builder.toml",
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "build-worker",
		Short: "Standalone worker that builds queued vibe-builder jobs",
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.Flags().IntVar(&concurrency, "jobs", 0, "Maximum concurrent jobs (overrides config)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServiceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// systemConfigPath returns the first existing system config file
func systemConfigPath() string {
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func run(cmd *cobra.Command, args []string) error {
	if err := checkPrerequisites(); err != nil {
		return err
	}

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = systemConfigPath()
	}

	a, err := app.Open(cfgPath, debug)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("jobs") {
		if concurrency < 1 {
			return fmt.Errorf("--jobs must be at least 1")
		}
		a.Config.Worker.Concurrency = concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.Info("build-worker starting",
		"concurrency", a.Config.Worker.Concurrency,
		"database", a.Config.General.DatabasePath,
		"workspace", a.Config.General.WorkspaceDir)
	return a.RunWorker(ctx, nil)
}

func checkPrerequisites() error {
	for _, bin := range []string{"node", "npm", "npx"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf(`%s is required but not found in PATH

Build workers scaffold, install and build Node.js projects.
Install Node.js 18 or newer (https://nodejs.org) and make sure npm and npx
are on the PATH of the user running the worker.`, bin)
		}
	}
	return nil
}
