// Command drinks runs the drinks.fyi server and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/drinks-fyi/pkg/config"
	"github.com/Sternrassler/drinks-fyi/pkg/logging"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "drinks",
		Short: "drinks.fyi cocktail gallery",
		Long: `drinks.fyi serves a server-rendered cocktail gallery with search and an
admin interface, and keeps its payload cache and CDN warm.

Configuration is read from the YAML file given with --config and from
DRINKS_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.Logging.Level = c.logLevel
			}
			c.cfg = cfg
			c.logger = logging.Setup(logging.Config{
				Level:  cfg.Logging.Level,
				Pretty: cfg.Logging.Pretty,
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("DRINKS_CONFIG"), "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(c),
		newPrimeCmd(c),
		newReindexCmd(c),
		newSeedCmd(c),
		newUserCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
