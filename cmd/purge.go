package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/earnings-cli/internal/cache"
	"github.com/sells-group/earnings-cli/internal/export"
)

var purgeMaxAgeHours int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached documents and exports older than the max age",
	RunE: func(cmd *cobra.Command, _ []string) error {
		maxAge := cfg.Cache.MaxAge()
		if purgeMaxAgeHours >= 0 {
			maxAge = time.Duration(purgeMaxAgeHours) * time.Hour
		}

		docs, err := cache.New(cfg.CacheDir())
		if err != nil {
			return err
		}
		n, err := docs.Purge(maxAge)
		if err != nil {
			return err
		}
		m, err := cache.PurgeDir(cfg.ExportDir(), export.Patterns, maxAge)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached documents and %d exports older than %s\n", n, m, maxAge)
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&purgeMaxAgeHours, "max-age-hours", -1, "age threshold in hours (default from config)")
	rootCmd.AddCommand(purgeCmd)
}
