package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/miratopia/credvault/internal/vault"
)

func newDeleteCommand(app *cliApp) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an account from the vault",
		Long: `Delete an account and all of its stored credentials.

This action cannot be undone. You will be prompted for confirmation
unless you use the --yes flag. If the account was the active one, the
first remaining account becomes the default.

Example:
  credvault delete old-account
  credvault delete Steve --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withVault(cmd, func() error {
				return runDelete(cmd, app, args[0], yes)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip confirmation prompt")

	return cmd
}

func runDelete(cmd *cobra.Command, app *cliApp, name string, yes bool) error {
	svc := app.service()

	names, err := svc.ListAccounts()
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("account '%s': %w", name, vault.ErrNotFound)
	}

	out := cmd.OutOrStdout()
	if !yes {
		confirmed, err := PromptConfirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete account '%s'?", name), false)
		if err != nil {
			return fmt.Errorf("failed to get confirmation: %w", err)
		}
		if !confirmed {
			return writeOutput(out, "Account deletion cancelled\n")
		}
	}

	if err := svc.DelAccount(name); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return writeOutput(out, "✓ Account '%s' deleted\n", name)
}
