package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ppexec/internal/api"
	"ppexec/internal/middleware"
	"ppexec/internal/pipeline"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API and the configured schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := a.cfg
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}

			eng, err := a.newEngine(ctx, true)
			if err != nil {
				return err
			}
			defer eng.Close() //nolint:errcheck

			sched := pipeline.NewScheduler(eng.exec, a.logger)
			for _, s := range cfg.Schedules {
				if err := sched.Add(pipeline.Schedule{Name: s.Name, Cron: s.Cron, Pipeline: s.Pipeline}); err != nil {
					return err
				}
			}
			sched.Start()
			defer sched.Stop()

			opts := api.Options{
				Logger:         a.logger,
				AllowedOrigins: cfg.Server.CORSAllowedOrigins,
				RateLimit: middleware.RateLimitConfig{
					RequestsPerSecond: cfg.Server.RateLimitRPS,
					Burst:             cfg.Server.RateLimitBurst,
				},
			}
			if eng.journal != nil {
				opts.Journal = eng.journal
			}
			api.Version = version

			srv := &http.Server{
				Addr:              cfg.Server.ListenAddr,
				Handler:           api.NewServer(eng.exec, opts).Router(ctx),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("HTTP API listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen_addr)")
	return cmd
}
