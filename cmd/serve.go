package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mcptick/internal/audit"
	"github.com/nextlevelbuilder/mcptick/internal/bootstrap"
	"github.com/nextlevelbuilder/mcptick/internal/clock"
	"github.com/nextlevelbuilder/mcptick/internal/config"
	"github.com/nextlevelbuilder/mcptick/internal/control"
	"github.com/nextlevelbuilder/mcptick/internal/dispatch"
	"github.com/nextlevelbuilder/mcptick/internal/scheduler"
	"github.com/nextlevelbuilder/mcptick/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Stdio control plane shares stdout with the protocol; keep logs on stderr
	// either way.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	recorder := audit.NewRecorder(st)
	disp := dispatch.New(cfg.Backends, recorder)
	defer disp.Close()

	ticker := scheduler.New(st, disp, recorder, clock.Real{}, scheduler.Options{
		TickInterval:   time.Duration(cfg.TickSeconds) * time.Second,
		MaxJobsPerTick: cfg.MaxJobsPerTick,
		Parallelism:    cfg.Parallelism,
		CallTimeout:    time.Duration(cfg.CallTimeoutSec) * time.Second,
		Retention:      time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	})

	ctrl := control.New(cfg, st, ticker)
	disp.RegisterInProcess(bootstrap.SchedulerBackend, ctrl.MCPServer(), cfg.ClientToken)

	if err := bootstrap.Seed(ctx, cfg, st); err != nil {
		slog.Warn("bootstrap failed", "error", err)
	}

	if watcher, err := config.NewWatcher(cfg.BackendsFile); err != nil {
		slog.Warn("backends file watch unavailable", "error", err)
	} else {
		watcher.OnChange(disp.UpdateBackends)
		if err := watcher.Start(); err != nil {
			slog.Warn("backends file watch unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	ticker.Start(ctx)
	defer ticker.Stop()

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Transport == config.TransportStdio {
			serveErr <- ctrl.ServeStdio()
			return
		}
		serveErr <- ctrl.ServeHTTP()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		slog.Warn("control plane shutdown", "error", err)
	}
	return nil
}
