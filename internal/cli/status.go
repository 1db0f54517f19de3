package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miratopia/credvault/internal/vault"
)

type statusInfo struct {
	VaultPath    string             `json:"vault_path"`
	SaltPath     string             `json:"salt_path"`
	VaultExists  bool               `json:"vault_exists"`
	VaultSize    int64              `json:"vault_size"`
	Initialized  bool               `json:"initialized"`
	Cipher       string             `json:"cipher"`
	KDF          vault.Argon2Params `json:"kdf"`
	State        string             `json:"state"`
	AccountCount *int               `json:"account_count,omitempty"`
	Active       string             `json:"active,omitempty"`
	Repairs      int                `json:"repairs"`
}

func newStatusCommand(app *cliApp) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		Long: `Display vault file locations, encryption parameters and, when the
password is available from the environment, account statistics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, app, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, app *cliApp, asJSON bool) error {
	paths := app.cfg.Paths()
	result := statusInfo{
		VaultPath: paths.VaultPath,
		SaltPath:  paths.SaltPath,
		Cipher:    "AES-256-GCM",
		KDF:       app.cfg.KDF.Params(),
		State:     app.manager.State().String(),
	}

	if info, err := os.Stat(paths.VaultPath); err == nil {
		result.VaultExists = true
		result.VaultSize = info.Size()
	}
	if _, err := os.Stat(paths.SaltPath); err == nil {
		result.Initialized = true
	}

	if result.Initialized && app.passwordAvailable() {
		err := app.withVault(cmd, func() error {
			result.State = app.manager.State().String()
			result.Repairs = app.manager.Repairs()
			if params, ok := app.manager.KDFParams(); ok {
				result.KDF = params
			}

			names, err := app.accounts.List()
			if err != nil {
				return err
			}
			count := len(names)
			result.AccountCount = &count

			result.Active, err = app.accounts.ActiveName()
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to read vault: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, result)
	}

	if err := writeOutput(out, "Vault: %s\nSalt: %s\nCipher: %s\n", result.VaultPath, result.SaltPath, result.Cipher); err != nil {
		return err
	}
	if err := writeOutput(out, "KDF: Argon2id (memory %d KB, iterations %d, parallelism %d)\n",
		result.KDF.Memory, result.KDF.Iterations, result.KDF.Parallelism); err != nil {
		return err
	}

	if !result.Initialized {
		return writeOutput(out, "State: not initialized (run 'credvault add' to create the vault)\n")
	}
	if result.AccountCount == nil {
		return writeOutput(out, "Accounts: (set $%s to show)\n", app.cfg.PasswordEnv)
	}

	if err := writeOutput(out, "State: %s\nAccounts: %d\n", result.State, *result.AccountCount); err != nil {
		return err
	}
	active := result.Active
	if active == "" {
		active = "(none)"
	}
	if err := writeOutput(out, "Active: %s\n", active); err != nil {
		return err
	}
	if result.Repairs > 0 {
		return writeOutput(out, "⚠️  The vault file was corrupted and has been reset\n")
	}
	return nil
}
