package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "earnings-cli",
	Short:   "Scrape EarningsHub quote pages into an earnings history table",
	Long:    "Fetches EarningsHub overview, analyst and earnings pages with a headless browser, caches them on disk, normalizes the earnings history and overview blocks, and reconciles the rows into Postgres or SQLite with JSON, CSV and XLSX exports.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "earnings-cli: load config")
		}
		applyFlagOverrides(cmd, c)
		cfg = c

		if err := config.InitLogger(cfg); err != nil {
			return eris.Wrap(err, "earnings-cli: init logger")
		}
		zap.L().Debug("earnings-cli: starting",
			zap.String("command", cmd.Name()),
			zap.String("version", version),
			zap.String("data_dir", cfg.DataDir),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "override data_dir for the cache, exports and the SQLite file")
}

// applyFlagOverrides copies explicitly set persistent flags onto c.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("data-dir") {
		c.DataDir, _ = flags.GetString("data-dir")
		c.Store.DataDir = c.DataDir
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
