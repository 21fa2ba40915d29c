package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"DisclosureMonitor/internal/config"
	"DisclosureMonitor/internal/logging"
)

// cli carries what every subcommand needs after the config is loaded.
type cli struct {
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "disclosuremonitor",
		Short: "Corporate disclosure feed monitor with email alerts",
		Long: `disclosuremonitor polls a corporate announcements RSS feed, picks out
award and contract disclosures, summarises the attached filing and sends
one alert per new item.

Example usage:
  disclosuremonitor start                 # run in the background
  disclosuremonitor start --foreground    # run attached to the terminal
  disclosuremonitor status                # alert history and liveness
  disclosuremonitor run-once --lookback 6h
  disclosuremonitor stop`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default $DISCLOSURE_MONITOR_CONFIG)")

	root.AddCommand(
		c.startCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.runOnceCmd(),
		c.pruneCmd(),
	)
	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg
	c.logger = logging.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	return nil
}
