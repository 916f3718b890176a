package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/models"
	"github.com/upb/admin-portal/services/authclient"
	"github.com/upb/admin-portal/session"
)

// cliScope is the session scope used by command line sign-ins
const cliScope = "cli"

type profileReport struct {
	ID     models.UserID `yaml:"id"`
	Name   string        `yaml:"name,omitempty"`
	Email  string        `yaml:"email,omitempty"`
	Status string        `yaml:"status,omitempty"`
	Roles  []models.Role `yaml:"roles"`
}

type sessionReport struct {
	Authenticated bool               `yaml:"authenticated"`
	Degraded      bool               `yaml:"degraded"`
	User          *profileReport     `yaml:"user,omitempty"`
	Capabilities  []authz.Capability `yaml:"capabilities"`
	ExpiresAt     string             `yaml:"expires_at,omitempty"`
}

func newSessionReport(s models.Session) sessionReport {
	report := sessionReport{
		Authenticated: s.Authenticated(),
		Degraded:      s.Degraded(),
		Capabilities:  authz.Capabilities(s),
	}
	if p := s.Profile; p != nil {
		report.User = &profileReport{
			ID:     p.ID,
			Name:   p.Name,
			Email:  p.Email,
			Status: p.Status,
			Roles:  p.Roles.Sorted(),
		}
	}
	if exp, ok := authclient.CredentialExpiry(s.Credential); ok {
		report.ExpiresAt = exp.UTC().Format(time.RFC3339)
	}
	return report
}

func newLoginCmd() *cobra.Command {
	var email, password, apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in against the API and print the resulting session as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if apiURL == "" {
				apiURL = cfg.API.BaseURL
			}

			medium := session.NewMemoryMedium(cfg.Session.TTL)
			defer medium.Close()
			store := session.NewStore(medium, cfg.Session.Namespace, logger).Scope(cliScope)

			client := authclient.NewClient(apiURL, store, logger)
			sess, err := client.SignIn(ctx, email, password)
			if err != nil {
				return fmt.Errorf("sign in: %w", err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(newSessionReport(sess))
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "REST API base URL (default API_BASE_URL)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
