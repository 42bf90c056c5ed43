// Package export writes extracted earnings data to JSON, CSV and XLSX files
// and reads exported CSV/XLSX files back for import.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Patterns lists the artifact globs the pre-run cleanup purges.
var Patterns = []string{"*.json", "*.csv", "*.xlsx"}

// OverviewName returns the JSON file name for ticker.
func OverviewName(ticker string) string {
	return fmt.Sprintf("%s_eh_overview.json", strings.ToUpper(ticker))
}

// EarningsCSVName returns the CSV file name for ticker.
func EarningsCSVName(ticker string) string {
	return fmt.Sprintf("%s_eh_earnings.csv", strings.ToUpper(ticker))
}

// EarningsXLSXName returns the workbook file name for ticker.
func EarningsXLSXName(ticker string) string {
	return fmt.Sprintf("%s_eh_earnings.xlsx", strings.ToUpper(ticker))
}

// writeAtomic streams into a temp file in dir and renames it over name, so
// readers never see a partial export.
func writeAtomic(dir, name string, write func(w io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", dir)
	}

	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", eris.Wrapf(err, "export: create temp for %s", name)
	}
	tmp := f.Name()
	defer os.Remove(tmp) //nolint:errcheck

	if err := write(f); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "export: close %s", name)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp, path); err != nil {
		return "", eris.Wrapf(err, "export: rename %s", name)
	}
	zap.L().Info("export: wrote file", zap.String("path", path))
	return path, nil
}
