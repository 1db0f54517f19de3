package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSwitchCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "switch <name>",
		Short: "Make an account the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withVault(cmd, func() error {
				if err := app.service().SwitchActiveAccount(args[0]); err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), "✓ Active account is now '%s'\n", args[0])
			})
		},
	}
}

func newActiveCommand(app *cliApp) *cobra.Command {
	var (
		asJSON bool
		show   bool
	)

	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the active account",
		Long: `Show the active account. When none was chosen with 'switch', the first
account added is the active one.

Example:
  credvault active
  credvault active --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withVault(cmd, func() error {
				return runActive(cmd, app, asJSON, show)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the full record as JSON")
	cmd.Flags().BoolVarP(&show, "show", "s", false, "Show tokens in terminal (security warning)")

	return cmd
}

func runActive(cmd *cobra.Command, app *cliApp, asJSON, show bool) error {
	name, err := app.accounts.ActiveName()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if name == "" {
		if asJSON {
			return writeString(out, "null\n")
		}
		return writeOutput(out, "No active account\n")
	}

	rec, err := app.service().GetActiveAccount(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get active account: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("active account '%s' is incomplete, run 'credvault doctor'", name)
	}

	if asJSON {
		return writeJSON(out, newAccountView(name, rec, true, true))
	}
	return writeAccount(out, name, rec, show)
}
