package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-lake/internal/api"
	"github.com/albapepper/scoracle-lake/internal/cache"
	"github.com/albapepper/scoracle-lake/internal/schedule"
)

// --------------------------------------------------------------------------
// schedule command
// --------------------------------------------------------------------------

func scheduleCmd(ov *overrides) *cobra.Command {
	var (
		runOnStart bool
		noServer   bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run daily ingestion on SCHEDULE_CRON and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, ov, func(ctx context.Context, e *engine) error {
				appCache := cache.New(e.cfg.CacheEnabled)
				defer appCache.Close()
				logger.Info("Cache initialized", "enabled", e.cfg.CacheEnabled)

				sched, err := schedule.New(e.orchestrator, appCache, schedule.Config{
					Spec:       e.cfg.ScheduleCron,
					Location:   e.cfg.LeagueTimezone,
					RunTimeout: e.cfg.RunTimeout,
					RunOnStart: runOnStart,
				}, logger)
				if err != nil {
					return err
				}

				ctx, stop := context.WithCancel(ctx)
				defer stop()
				stopped := make(chan struct{})
				go func() {
					sched.Start(ctx)
					close(stopped)
				}()

				if noServer {
					<-stopped
					return nil
				}

				router := api.NewRouter(api.Deps{
					Store:   e.ledger,
					Cache:   appCache,
					Metrics: e.metrics,
					Daemon:  sched,
				}, e.cfg)
				srv := &http.Server{
					Addr:         e.cfg.StatusAddr,
					Handler:      router,
					ReadTimeout:  10 * time.Second,
					WriteTimeout: 30 * time.Second,
					IdleTimeout:  60 * time.Second,
				}

				serveErr := make(chan error, 1)
				go func() {
					logger.Info("Starting status API", "addr", e.cfg.StatusAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						serveErr <- err
					}
				}()

				select {
				case <-ctx.Done():
				case err := <-serveErr:
					stop()
					<-stopped
					return err
				}
				logger.Info("Shutting down...")

				// Graceful shutdown with timeout
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Shutdown error", "error", err)
				}
				<-stopped
				logger.Info("Daemon stopped")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run once immediately instead of waiting for the first tick")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "Do not serve the status API")
	return cmd
}
