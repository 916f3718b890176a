package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/upb/admin-portal/app"
	"github.com/upb/admin-portal/routes"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the portal server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			if err := deps.Start(); err != nil {
				_ = deps.Close(ctx)
				return err
			}

			ln, err := net.Listen("tcp", cfg.Server.Address())
			if err != nil {
				_ = deps.Close(ctx)
				return fmt.Errorf("listen on %s: %w", cfg.Server.Address(), err)
			}

			srv := &http.Server{
				Handler:           routes.SetupRoutes(deps),
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
				ReadHeaderTimeout: 5 * time.Second,
			}
			return run(ctx, srv, ln, deps, cfg.Server.ShutdownTimeout)
		},
	}
}

// run serves on ln until ctx is done, then drains the server and closes deps
func run(ctx context.Context, srv *http.Server, ln net.Listener, deps *app.Dependencies, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Logger.Info("admin portal listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(srv.Shutdown(shutdownCtx), deps.Close(shutdownCtx))
	})

	return g.Wait()
}
