package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/miratopia/credvault/internal/account"
	"github.com/miratopia/credvault/internal/auth"
	"github.com/miratopia/credvault/internal/util"
)

func newAddCommand(app *cliApp) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "add <offline|microsoft> [name]",
		Short: "Add an account to the vault",
		Long: `Add an account to the vault.

Offline accounts are created locally and need a name, which is also the
in-game username. Microsoft accounts are imported from the JSON file written
by an external login (--from-file); the name defaults to the account's
username.

Adding a name that already exists replaces its credentials.

Example:
  credvault add offline Steve
  credvault add microsoft --from-file ~/Downloads/profile.json
  credvault add microsoft main --from-file profile.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := strings.ToLower(args[0])
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			if kind == account.KindMicrosoft && fromFile == "" {
				return util.InvalidInput("microsoft accounts require --from-file")
			}
			return app.withVault(cmd, func() error {
				return runAdd(cmd, app, kind, name, fromFile)
			})
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "", "JSON credential file produced by an external Microsoft login")

	return cmd
}

func runAdd(cmd *cobra.Command, app *cliApp, kind, name, fromFile string) error {
	svc := app.service(
		account.WithAuthenticator(account.KindMicrosoft, auth.NewFileImport(fromFile, account.ProviderMicrosoft)),
	)

	name, err := svc.AddAccount(cmd.Context(), kind, name)
	if err != nil {
		if errors.Is(err, account.ErrUnknownKind) ||
			errors.Is(err, account.ErrInvalidName) ||
			errors.Is(err, auth.ErrInvalidUsername) ||
			errors.Is(err, auth.ErrIncompleteRecord) {
			return fmt.Errorf("%w: %w", util.ErrInvalidInput, err)
		}
		return fmt.Errorf("failed to add account: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := writeOutput(out, "✓ Account '%s' added (%s)\n", name, kind); err != nil {
		return err
	}
	if app.verbose {
		rec, err := app.accounts.Get(name)
		if err == nil && rec != nil {
			return writeAccount(out, name, rec, false)
		}
	}
	return nil
}
