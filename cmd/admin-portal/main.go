package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/admin-portal/config"
	"github.com/upb/admin-portal/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "admin-portal",
		Short: "Session and authorization server for the admin SPA",
		Long: `admin-portal holds the admin SPA's sessions, signs users in against the
REST API, and guards every view and admin call by the capabilities of the
signed-in user's roles.

Configuration is read from the environment (and a .env file when present).`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newCapabilitiesCmd())
	root.AddCommand(newLoginCmd())
	return root
}

// loadConfig reads the environment and builds the logger it describes
func loadConfig(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(observability.LoggerConfig{
		Format:  cfg.Observability.LogFormat,
		Level:   cfg.Observability.LogLevel,
		Service: "admin-portal",
	})
	return cfg, logger, nil
}
