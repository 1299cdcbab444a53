package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/vibe-builder/internal/app"
	"github.com/hochfrequenz/vibe-builder/internal/worker"
	"github.com/hochfrequenz/vibe-builder/web/api"
)

var (
	serveNoWorker bool
	servePort     int
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with an embedded worker",
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not process jobs in this process")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs without serving HTTP",
		RunE:  runWorker,
	}
	rootCmd.AddCommand(workerCmd)
}

func openApp() (*app.App, error) {
	return app.Open(configPath, debug)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signalContext()
	defer stop()

	srv := api.NewServer(api.Config{
		Addr:      cfg.Addr(),
		Ledger:    a.Ledger,
		Jobs:      a.Jobs,
		Registry:  a.Registry,
		Planner:   a.Planner(),
		TailLines: cfg.Logs.TailLines,
		Logger:    a.Logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		return a.Repo.Watch(ctx, func() {
			srv.Broadcast(api.SSEEvent{Type: "registry", Data: a.Repo.List()})
		})
	})

	if serveNoWorker {
		jan, err := a.NewJanitor()
		if err != nil {
			return err
		}
		g.Go(func() error { return jan.Run(ctx) })
	} else {
		g.Go(func() error {
			return a.RunWorker(ctx, func(ev worker.StatusEvent) {
				srv.Broadcast(api.SSEEvent{Type: "status", Data: ev})
			})
		})
	}

	a.Logger.Info("vibe-builder serving", "addr", cfg.Addr(), "worker", !serveNoWorker,
		"data", cfg.General.DataDir, "registry", a.Repo.Path())
	return g.Wait()
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return a.RunWorker(ctx, nil)
}
