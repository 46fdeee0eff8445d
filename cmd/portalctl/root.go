package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/app"
	"carbon-scribe/restoration-portal/internal/config"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool
	out        io.Writer
	app        *app.App
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Operate the restoration portal's projects and credit ledger",
		Long: "portalctl inspects restoration projects, issues credits and exports\n" +
			"reports directly against the portal's configured storage.",
		SilenceUsage:       true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "config file (JSON or YAML)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at info level")

	root.AddCommand(
		c.listCmd(),
		c.showCmd(),
		c.walletCmd(),
		c.dashboardCmd(),
		c.finalizeCmd(),
		c.reconcileCmd(),
		c.exportCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if !c.verbose {
		cfg.Logging.Level = "warn"
	}
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}

	c.app, err = app.New(context.Background(), cfg, logger, app.Options{SkipRecovery: true})
	return err
}

func (c *cli) close(cmd *cobra.Command, args []string) error {
	if c.app == nil {
		return nil
	}
	logger := c.app.Logger
	defer logger.Sync()
	err := c.app.Close()
	c.app = nil
	if err != nil {
		logger.Warn("Failed to close storage", zap.Error(err))
	}
	return err
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
