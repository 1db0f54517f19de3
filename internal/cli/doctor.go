package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/miratopia/credvault/internal/clipboard"
)

type checkReport struct {
	out      io.Writer
	issues   int
	warnings int
}

func (r *checkReport) ok(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   ✅ "+format+"\n", args...)
}

func (r *checkReport) warn(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   ⚠️  "+format+"\n", args...)
	r.warnings++
}

func (r *checkReport) fail(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   ❌ "+format+"\n", args...)
	r.issues++
}

func newDoctorCommand(app *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Perform security and health checks",
		Long: `Perform security and health checks on the vault.

This command checks:
- File permissions of the vault, salt and config files
- Vault readability, repairing the account index if it is out of sync
- KDF parameter strength
- Clipboard availability and timeout

Example:
  credvault doctor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, app)
		},
	}
}

func runDoctor(cmd *cobra.Command, app *cliApp) error {
	r := &checkReport{out: cmd.OutOrStdout()}
	paths := app.cfg.Paths()

	fmt.Fprintln(r.out, "Credvault Security & Health Check")
	fmt.Fprintln(r.out, "=================================")

	fmt.Fprintln(r.out, "\n1. File Security")
	checkFilePerm(r, "Vault file", paths.VaultPath)
	checkFilePerm(r, "Salt file", paths.SaltPath)
	checkFilePerm(r, "Config file", app.cfgFile)

	fmt.Fprintln(r.out, "\n2. Directory Security")
	for _, dir := range []string{filepath.Dir(paths.VaultPath), filepath.Dir(paths.SaltPath)} {
		if info, err := os.Stat(dir); err == nil {
			if perm := info.Mode().Perm(); perm&0o077 == 0 {
				r.ok("%s: %o (secure)", dir, perm)
			} else {
				r.warn("%s: %o (consider 0700 for better security)", dir, perm)
			}
		}
	}

	fmt.Fprintln(r.out, "\n3. Vault Integrity")
	switch {
	case !fileExists(paths.SaltPath):
		r.warn("Vault not initialized yet")
	case !app.passwordAvailable():
		r.warn("Password not in $%s, cannot open the vault", app.cfg.PasswordEnv)
	default:
		err := app.withVault(cmd, func() error {
			if app.manager.Repairs() > 0 {
				r.fail("Vault file was unreadable and has been reset to empty")
			} else {
				r.ok("Vault decrypts and decodes")
			}

			added, removed, err := app.accounts.Reindex()
			if err != nil {
				return err
			}
			if len(added) == 0 && len(removed) == 0 {
				r.ok("Account index is consistent")
			} else {
				r.warn("Account index repaired (added %s; removed %s)", joinOrNone(added), joinOrNone(removed))
			}

			names, err := app.accounts.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := app.accounts.Get(name); err != nil {
					r.fail("Account '%s' is unreadable: %v", name, err)
				}
			}
			r.ok("%d accounts", len(names))
			return nil
		})
		if err != nil {
			r.fail("Vault check failed: %v", err)
		}
	}

	fmt.Fprintln(r.out, "\n4. Cryptographic Parameters")
	kdf := app.cfg.KDF
	switch {
	case kdf.Memory >= 65536:
		r.ok("KDF memory parameter: %d KB (strong)", kdf.Memory)
	case kdf.Memory >= 8192:
		r.warn("KDF memory parameter: %d KB (acceptable but consider increasing)", kdf.Memory)
	default:
		r.fail("KDF memory parameter: %d KB (weak, should be at least 8192 KB)", kdf.Memory)
	}
	if kdf.Iterations >= 3 {
		r.ok("KDF iterations: %d (adequate)", kdf.Iterations)
	} else {
		r.warn("KDF iterations: %d (consider increasing for better security)", kdf.Iterations)
	}

	fmt.Fprintln(r.out, "\n5. Clipboard")
	if clipboard.IsAvailable(clipboardBackend) {
		r.ok("Clipboard is available")
	} else {
		r.warn("Clipboard is not available; get --copy will fail")
	}
	if app.cfg.ClipboardTTL > 60*time.Second {
		r.warn("Clipboard timeout is %v (consider reducing for better security)", app.cfg.ClipboardTTL)
	} else {
		r.ok("Clipboard timeout: %v (secure)", app.cfg.ClipboardTTL)
	}

	fmt.Fprintln(r.out, "\n"+strings.Repeat("=", 40))
	if r.issues == 0 && r.warnings == 0 {
		fmt.Fprintln(r.out, "✅ All checks passed!")
		return nil
	}
	if r.issues > 0 {
		fmt.Fprintf(r.out, "❌ Found %d issues that should be fixed\n", r.issues)
	}
	if r.warnings > 0 {
		fmt.Fprintf(r.out, "⚠️  Found %d warnings for consideration\n", r.warnings)
	}
	return nil
}

func checkFilePerm(r *checkReport, label, path string) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		r.ok("%s not found: %s", label, path)
		return
	}
	if err != nil {
		r.fail("Cannot check %s: %v", strings.ToLower(label), err)
		return
	}

	perm := info.Mode().Perm()
	switch {
	case perm == 0o600:
		r.ok("%s permissions: %o (secure)", label, perm)
	case perm&0o077 != 0:
		r.fail("%s permissions: %o (too permissive, should be 0600)", label, perm)
		fmt.Fprintf(r.out, "      Fix with: chmod 600 %s\n", path)
	default:
		r.warn("%s permissions: %o (acceptable but 0600 recommended)", label, perm)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
