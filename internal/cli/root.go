// Package cli implements the papertrade command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrade/config"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootConfig holds the persistent flags shared by every command.
type RootConfig struct {
	ConfigPath string
	DBPath     string
	LogLevel   string
	Style      string

	// Config is loaded in PersistentPreRunE.
	Config *config.Config
	Logger *slog.Logger
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:           "papertrade",
		Short:         "papertrade: a paper stock trading simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&rc.ConfigPath, "config", "", "Path to config file (optional)")
	cmd.PersistentFlags().StringVar(&rc.DBPath, "db", "", "SQLite database (overrides database.path)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&rc.Style, "style", "auto", "Output style: auto|plain|dark|light")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rc.load(cmd)
	}

	cmd.AddCommand(
		newServeCmd(rc),
		newRegisterCmd(rc),
		newQuoteCmd(rc),
		newTradeCmd(rc, "buy"),
		newTradeCmd(rc, "sell"),
		newPortfolioCmd(rc),
		newHistoryCmd(rc),
		newTransactionCmd(rc),
		newConfigCmd(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "papertrade %s\n", Version)
		},
	})

	return cmd
}

// load reads the config file (or defaults), applies environment and flag
// overrides and builds the logger.
func (rc *RootConfig) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if rc.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(rc.ConfigPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if rc.DBPath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = rc.DBPath
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	rc.Config = cfg
	rc.Logger = newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(rc.Logger)
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
