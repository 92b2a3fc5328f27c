// Package commands implements the conti command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conti/internal/buildinfo"
	"conti/internal/cli"
	"conti/internal/config"
	applog "conti/internal/log"
)

// app is the state shared by every subcommand: the validated config and the
// logger, both set up before a subcommand runs.
type app struct {
	envFile  string
	backend  string
	dataFile string
	logLevel string

	cfg    *config.Config
	logger *applog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "conti",
		Short:   "Shared household expense ledger",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&a.backend, "backend", "", "storage backend (file, memory, sqlite, sheets); overrides DATA_BACKEND")
	flags.StringVar(&a.dataFile, "data-file", "", "ledger JSON file; overrides DATA_FILE")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(
		newAddCommand(a),
		newEditCommand(a),
		newDeleteCommand(a),
		newListCommand(a),
		newBalancesCommand(a),
		newSettleCommand(a),
		newTotalsCommand(a),
		newPeriodsCommand(a),
		newCategoriesCommand(a),
		newClearCommand(a),
		newExportCommand(a),
		newStatusCommand(a),
		newServeCommand(a),
	)

	return rootCmd
}

func (a *app) setup() error {
	if err := cli.LoadEnvFile(a.envFile); err != nil {
		return err
	}
	cfg := config.Load()
	if a.backend != "" {
		cfg.DataBackend = a.backend
	}
	if a.dataFile != "" {
		cfg.DataFile = a.dataFile
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg, applog.ComponentCLI)
	return nil
}

// open hydrates the ledger. With publish set, changes are announced on the
// broker when one is configured.
func (a *app) open(ctx context.Context, publish bool) (*cli.Session, error) {
	session, err := cli.OpenLedger(ctx, a.cfg, a.logger.Slog(), publish)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return session, nil
}

// withSession runs fn against an opened ledger and closes it afterwards.
func (a *app) withSession(cmd *cobra.Command, publish bool, fn func(ctx context.Context, s *cli.Session) error) error {
	ctx := commandContext(cmd)
	session, err := a.open(ctx, publish)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("Failed to close ledger", "error", err)
		}
	}()
	return fn(ctx, session)
}

// commandContext returns the context the command was executed with, or the
// background context when it was run without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
