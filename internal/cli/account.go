package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewAccountCommand creates the account command. Accounts let a reporter log
// in to the API.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage reporter login accounts",
	}

	var (
		reporterID int64
		password   string
	)
	create := &cobra.Command{
		Use:          "create <username>",
		Short:        "Create a login account for an existing reporter",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reporterID <= 0 {
				return errors.New("--reporter is required")
			}
			if password == "" {
				return errors.New("--password is required")
			}

			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			account, err := a.Auth.CreateAccount(cmd.Context(), reporterID, args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s for reporter %d\n", account.Username, account.ID)
			return nil
		},
	}
	create.Flags().Int64Var(&reporterID, "reporter", 0, "reporter id the account logs in as")
	create.Flags().StringVar(&password, "password", "", "initial password")
	cmd.AddCommand(create)

	cmd.AddCommand(newSetDisabledCommand(rootOpts, "disable", true))
	cmd.AddCommand(newSetDisabledCommand(rootOpts, "enable", false))

	return cmd
}

func newSetDisabledCommand(rootOpts *RootOptions, use string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:          use + " <username>",
		Short:        fmt.Sprintf("Mark an account as %sd", use),
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if err := a.Auth.SetDisabled(cmd.Context(), args[0], disabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s %sd\n", args[0], use)
			return nil
		},
	}
}
