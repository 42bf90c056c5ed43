package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/export"
	"github.com/sells-group/earnings-cli/internal/model"
	"github.com/sells-group/earnings-cli/internal/pipeline"
	"github.com/sells-group/earnings-cli/internal/store"
)

var (
	importCSVPath  string
	importXLSXPath string
	importTicker   string
	importBulk     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load an exported earnings CSV or XLSX file into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if (importCSVPath == "") == (importXLSXPath == "") {
			return eris.New("exactly one of --csv or --xlsx is required")
		}

		records, source, err := readImport()
		if err != nil {
			return err
		}

		ticker := importTicker
		if ticker == "" {
			ticker = tickerFromFilename(source)
		}
		rows, skipped := pipeline.ToRows(records, ticker)
		if len(rows) == 0 {
			zap.L().Warn("import: no rows to load", zap.String("file", source), zap.Int("skipped", skipped))
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if importBulk {
			pg, ok := st.(*store.PostgresStore)
			if !ok {
				return eris.New("--bulk requires the postgres driver")
			}
			n, err := pg.BulkUpsert(ctx, rows)
			if err != nil {
				return eris.Wrap(err, "import bulk")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d rows written, %d skipped\n", source, n, skipped)
			return nil
		}

		stats, err := st.UpsertMany(ctx, rows)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s: inserted=%d updated=%d unchanged=%d skipped=%d\n",
			source, stats.Inserted, stats.Updated, stats.Unchanged, skipped)
		if err != nil {
			return eris.Wrap(err, "import upsert")
		}
		return nil
	},
}

func readImport() ([]model.EarningsRecord, string, error) {
	if importXLSXPath != "" {
		recs, err := export.ReadEarningsXLSX(importXLSXPath)
		return recs, importXLSXPath, err
	}

	f, err := os.Open(importCSVPath)
	if err != nil {
		return nil, importCSVPath, eris.Wrap(err, "import: open csv")
	}
	defer f.Close() //nolint:errcheck

	recs, err := export.ReadEarningsCSV(f)
	return recs, importCSVPath, err
}

// tickerFromFilename recovers the ticker from an export name such as
// MSFT_eh_earnings.csv.
func tickerFromFilename(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "_eh_"); i > 0 {
		return strings.ToUpper(base[:i])
	}
	return ""
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to an exported earnings CSV")
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to an exported earnings workbook")
	importCmd.Flags().StringVar(&importTicker, "ticker", "", "ticker for rows without one (default from file name)")
	importCmd.Flags().BoolVar(&importBulk, "bulk", false, "load through COPY and one set-based upsert (postgres only)")
	rootCmd.AddCommand(importCmd)
}
