// Package cli implements the checkbell command line tool for seeding,
// materializing and inspecting departments without the HTTP server.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Cembrun/Checkbell-V2/internal/app"
	"github.com/Cembrun/Checkbell-V2/internal/config"
)

// NewRootCmd builds a fresh command tree so flag state never leaks between runs.
func NewRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:   "checkbell",
		Short: "Maintenance commands for CheckBell departments",
		Long: `checkbell seeds demo data, creates due recurring tasks and inspects department state using the same configuration as the server.

Commands open the configured store directly. Do not run them against a file store the server is writing to.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", "", "directory containing checkbell.yaml")

	open := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := config.Load(configDir)
		if err != nil {
			return nil, err
		}
		return app.New(cmd.Context(), cfg)
	}

	root.AddCommand(
		newSeedCmd(open),
		newMaterializeCmd(open),
		newTemplatesCmd(open),
		newStatsCmd(open),
	)
	return root
}

type opener func(cmd *cobra.Command) (*app.App, error)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// departments returns the single department named by flag, or all configured ones.
func departments(a *app.App, only string) []string {
	if only != "" {
		return []string{only}
	}
	return a.Config.Departments
}
