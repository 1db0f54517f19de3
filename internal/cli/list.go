package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand(app *cliApp) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts in the vault",
		Long: `List all accounts in the order they were added. The active account is
marked with '*'.

Example:
  credvault list
  credvault list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withVault(cmd, func() error {
				return runList(cmd, app, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	return cmd
}

func runList(cmd *cobra.Command, app *cliApp, asJSON bool) error {
	names, err := app.service().ListAccounts()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	active, err := app.accounts.ActiveName()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, struct {
			Accounts []string `json:"accounts"`
			Active   string   `json:"active,omitempty"`
		}{names, active})
	}

	if len(names) == 0 {
		if err := writeOutput(out, "No accounts found\n"); err != nil {
			return err
		}
		return writeOutput(out, "Use 'credvault add offline <name>' to create your first account\n")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(w, "ACTIVE\tNAME\tPROVIDER\n"); err != nil {
		return fmt.Errorf("failed to write table header: %w", err)
	}
	for _, name := range names {
		marker := ""
		if name == active {
			marker = "*"
		}

		var provider string
		rec, err := app.accounts.Get(name)
		switch {
		case err != nil:
			provider = "unreadable"
		case rec == nil:
			provider = "incomplete"
		default:
			provider = rec.Provider.String()
		}

		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", marker, name, provider); err != nil {
			return fmt.Errorf("failed to write account: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}

	if _, err := fmt.Fprintf(out, "\nFound %d accounts\n", len(names)); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
