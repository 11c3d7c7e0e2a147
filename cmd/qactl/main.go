// Command qactl is the operator CLI for the portfolio backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shaneshark.com/portfolio/internal/app"
	"shaneshark.com/portfolio/internal/config"
)

// cli carries state shared by all subcommands
type cli struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "qactl",
		Short:         "Operate the portfolio QA backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			if !c.verbose {
				cfg.Log.Level = "warn"
			}
			if err := app.StartLogging(cfg, "qactl"); err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file (default $CONFIG_FILE)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at the configured level instead of warn")

	root.AddCommand(
		c.initDBCmd(),
		c.importCmd(),
		c.userCmd(),
		c.hotCmd(),
		c.sandboxCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
