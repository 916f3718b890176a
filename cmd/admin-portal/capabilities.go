package main

import (
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/upb/admin-portal/authz"
	"github.com/upb/admin-portal/models"
)

type capabilityRow struct {
	Name    authz.Capability `yaml:"name"`
	Roles   []models.Role    `yaml:"roles"`
	Granted *bool            `yaml:"granted,omitempty"`
}

type capabilityReport struct {
	Roles        []models.Role   `yaml:"roles,omitempty"`
	Capabilities []capabilityRow `yaml:"capabilities"`
}

func newCapabilitiesCmd() *cobra.Command {
	var roles []string

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Print the capability table as YAML",
		Long: `Print every capability with the roles that grant it.

With --roles the table also shows whether a user holding exactly those roles
is granted each capability.

Examples:
  admin-portal capabilities
  admin-portal capabilities --roles manager,user`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := buildCapabilityReport(roles)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "Roles to evaluate (ADMIN, MANAGER, USER or ROLE_*)")
	return cmd
}

func buildCapabilityReport(names []string) (capabilityReport, error) {
	var report capabilityReport

	var s *models.Session
	if len(names) > 0 {
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				continue
			}
			role, err := authz.ParseRole(name)
			if err != nil {
				return report, err
			}
			report.Roles = append(report.Roles, role)
		}
		s = &models.Session{
			Credential: "cli",
			Profile:    &models.UserProfile{Roles: models.NewRoleSet(report.Roles...)},
		}
	}

	for _, c := range authz.AllCapabilities() {
		row := capabilityRow{Name: c, Roles: authz.Table[c].Roles}
		if s != nil {
			granted := authz.Can(*s, c)
			row.Granted = &granted
		}
		report.Capabilities = append(report.Capabilities, row)
	}
	return report, nil
}
