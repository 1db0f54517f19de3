package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/miratopia/credvault/internal/account"
	"github.com/miratopia/credvault/internal/auth"
	"github.com/miratopia/credvault/internal/config"
	"github.com/miratopia/credvault/internal/store"
)

// cliApp is the state shared by one command tree.
type cliApp struct {
	cfgFile string
	dataDir string
	verbose bool

	cfg      *config.Config
	logger   *slog.Logger
	manager  *store.Manager
	accounts *account.Store
	lock     *store.VaultLock
}

// NewRootCommand builds the credvault command tree.
func NewRootCommand() *cobra.Command {
	app := &cliApp{}

	rootCmd := &cobra.Command{
		Use:   "credvault",
		Short: "Encrypted local store for game account credentials",
		Long: `Credvault keeps the authentication material of game accounts in a single
encrypted file on the local machine.

Features:
- AES-256-GCM encryption with Argon2id key derivation
- Offline accounts and imported Microsoft accounts
- Default (active) account selection
- Automatic recovery from a corrupted vault file
- Secure clipboard integration with auto-clear`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.cfgFile, "config", "", "config file (default is $HOME/.config/credvault/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&app.dataDir, "data-dir", "", "directory holding the vault file")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newAddCommand(app),
		newGetCommand(app),
		newListCommand(app),
		newDeleteCommand(app),
		newSwitchCommand(app),
		newActiveCommand(app),
		newStatusCommand(app),
		newDoctorCommand(app),
	)

	return rootCmd
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (app *cliApp) init(cmd *cobra.Command) error {
	if app.cfgFile == "" {
		app.cfgFile = config.DefaultConfigPath()
	}

	cfg, err := config.LoadConfig(app.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if app.dataDir != "" {
		cfg.DataDir = app.dataDir
	}
	app.cfg = cfg

	level := cfg.Level()
	if app.verbose {
		level = slog.LevelDebug
	}
	app.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	paths := cfg.Paths()
	app.manager = store.NewManager(
		store.WithLogger(app.logger),
		store.WithKDFParams(cfg.KDF.Params()),
	)
	app.accounts = account.NewStore(app.manager, app.logger)
	app.lock = store.NewVaultLock(paths.VaultPath)
	return nil
}

// service returns an account service with the built-in authenticators and
// refreshers. extra options are applied last.
func (app *cliApp) service(extra ...account.ServiceOption) *account.Service {
	offline := auth.NewOffline()
	passthrough := &auth.Passthrough{Logger: app.logger}

	opts := []account.ServiceOption{
		account.WithServiceLogger(app.logger),
		account.WithAuthenticator(account.KindOffline, offline),
		account.WithRefresher(account.ProviderOffline, offline),
		account.WithRefresher(account.ProviderMicrosoft, passthrough),
		account.WithRefresher(account.ProviderAzuriom, passthrough),
	}
	return account.NewService(app.accounts, append(opts, extra...)...)
}
