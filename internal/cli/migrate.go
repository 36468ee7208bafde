package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var errNoMigrations = errors.New("the memory driver has no schema to migrate")

// NewMigrateCommand creates the migrate command and its up, down and status
// subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Apply all pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if a.DB.Migrations == nil {
				return errNoMigrations
			}
			count, err := a.DB.Migrations.Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "down",
		Short:        "Roll back the last applied migration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if a.DB.Migrations == nil {
				return errNoMigrations
			}
			if err := a.DB.Migrations.Down(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rolled back last migration")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:          "status",
		Short:        "List migrations and when they were applied",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if a.DB.Migrations == nil {
				return errNoMigrations
			}
			migrations, err := a.DB.Migrations.Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range migrations {
				state := "pending"
				if m.AppliedAt != nil {
					state = "applied " + m.AppliedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%03d %-32s %s\n", m.Version, m.Name, state)
			}
			return nil
		},
	})

	return cmd
}
