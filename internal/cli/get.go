package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/miratopia/credvault/internal/clipboard"
	"github.com/miratopia/credvault/internal/vault"
)

// clipboardBackend is swapped out in tests.
var clipboardBackend = clipboard.System

func newGetCommand(app *cliApp) *cobra.Command {
	var (
		asJSON     bool
		copyToClip bool
		show       bool
	)

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show an account's credentials",
		Long: `Show the stored credentials of an account.

Tokens are masked unless --show is given. --json prints the full record,
tokens included, for consumption by a launcher. --copy puts the access token
on the clipboard and waits until it is cleared after the configured timeout
(or on interrupt).

Example:
  credvault get Steve
  credvault get main --copy
  credvault get main --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cleared <-chan struct{}
			err := app.withVault(cmd, func() error {
				var err error
				cleared, err = runGet(cmd, app, args[0], asJSON, copyToClip, show)
				return err
			})
			if err != nil || cleared == nil {
				return err
			}
			// The vault is already closed and unlocked here.
			<-cleared
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the full record as JSON")
	cmd.Flags().BoolVarP(&copyToClip, "copy", "c", false, "Copy the access token to clipboard")
	cmd.Flags().BoolVarP(&show, "show", "s", false, "Show tokens in terminal (security warning)")
	cmd.MarkFlagsMutuallyExclusive("json", "copy")

	return cmd
}

// runGet returns a channel that closes once a copied token was cleared
// from the clipboard, or nil when nothing was copied.
func runGet(cmd *cobra.Command, app *cliApp, name string, asJSON, copyToClip, show bool) (<-chan struct{}, error) {
	rec, err := app.service().GetAccount(cmd.Context(), name)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("account '%s': %w", name, vault.ErrNotFound)
	}

	active, err := app.accounts.ActiveName()
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return nil, writeJSON(out, newAccountView(name, rec, name == active, true))
	}

	if copyToClip {
		ttl := app.cfg.ClipboardTTL
		cleared, err := clipboard.CopyWithTimeout(cmd.Context(), clipboardBackend, rec.AccessToken, ttl)
		if err != nil {
			return nil, err
		}
		if err := writeOutput(out, "✓ Access token for '%s' copied to clipboard (clears in %v)\n", name, ttl); err != nil {
			return nil, err
		}
		return cleared, nil
	}

	if show {
		fmt.Fprintln(cmd.ErrOrStderr(), "⚠️  WARNING: Displaying tokens in terminal")
	}
	return nil, writeAccount(out, name, rec, show)
}
