package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/miratopia/credvault/internal/util"
)

// errNoPassword is returned when the password is neither in the environment
// nor obtainable from a terminal.
var errNoPassword = errors.New("no vault password available")

// withVault takes the single-instance lock, opens the vault and runs fn.
// The vault is closed and the lock released when fn returns.
func (app *cliApp) withVault(cmd *cobra.Command, fn func() error) error {
	if err := app.openVault(cmd); err != nil {
		return err
	}
	defer app.closeVault()
	return fn()
}

func (app *cliApp) openVault(cmd *cobra.Command) error {
	if err := app.lock.TryLock(); err != nil {
		return err
	}

	password, err := app.password(cmd)
	if err != nil {
		_ = app.lock.Unlock()
		return err
	}

	if err := app.manager.EnsureOpen(app.cfg.Paths(), password); err != nil {
		_ = app.lock.Unlock()
		return fmt.Errorf("failed to open vault: %w", err)
	}
	return nil
}

func (app *cliApp) closeVault() {
	app.manager.Forget()
	if err := app.lock.Unlock(); err != nil {
		app.logger.Warn("failed to release vault lock", "path", app.lock.Path(), "error", err)
	}
}

// password reads the vault password from the configured environment
// variable, falling back to an interactive prompt. A new vault asks for
// confirmation.
func (app *cliApp) password(cmd *cobra.Command) (string, error) {
	if pw := os.Getenv(app.cfg.PasswordEnv); pw != "" {
		return pw, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%w: %w: set $%s", util.ErrInvalidInput, errNoPassword, app.cfg.PasswordEnv)
	}

	out := cmd.ErrOrStderr()
	if _, err := os.Stat(app.cfg.Paths().SaltPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "Creating a new vault.")
		return PromptPasswordConfirm(out, "Choose vault password: ")
	}
	return PromptPassword(out, "Vault password: ")
}

// passwordAvailable reports whether the password can be read without
// prompting.
func (app *cliApp) passwordAvailable() bool {
	return os.Getenv(app.cfg.PasswordEnv) != ""
}
