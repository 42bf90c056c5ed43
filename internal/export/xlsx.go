package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/earnings-cli/internal/model"
)

// SheetName is the worksheet holding earnings rows.
const SheetName = "earnings"

// WriteEarningsXLSX writes <TICKER>_eh_earnings.xlsx under dir with the CSV
// column layout.
func WriteEarningsXLSX(dir, ticker string, records []model.EarningsRecord) (string, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return "", eris.Wrap(err, "xlsx: add sheet")
	}

	addRow(sheet, model.CSVColumns)
	for _, rec := range records {
		addRow(sheet, rec.Values())
	}

	return writeAtomic(dir, EarningsXLSXName(ticker), func(w io.Writer) error {
		return eris.Wrap(f.Write(w), "xlsx: write")
	})
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// ReadEarningsXLSX reads records from the earnings sheet of a workbook,
// mapping cells by the header row.
func ReadEarningsXLSX(path string) ([]model.EarningsRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, h := range rowToStrings(sheet.Rows[0]) {
		index[h] = i
	}
	if _, ok := index["date"]; !ok {
		return nil, eris.Errorf("xlsx: sheet %q has no date column", sheet.Name)
	}

	out := make([]model.EarningsRecord, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		get := func(col string) string {
			if i, ok := index[col]; ok && i < len(cells) {
				return cells[i]
			}
			return ""
		}
		rec := model.EarningsRecord{
			Ticker:     get("ticker"),
			Quarter:    get("quarter"),
			Date:       get("date"),
			RevEst:     get("rev_est"),
			RevEstUnit: get("rev_est_unit"),
			RevAct:     get("rev_act"),
			RevActUnit: get("rev_act_unit"),
			RevPct:     get("rev_pct"),
			RevStatus:  model.Status(get("rev_status")),
			EPSEst:     get("eps_est"),
			EPSAct:     get("eps_act"),
			EPSPct:     get("eps_pct"),
			EPSStatus:  model.Status(get("eps_status")),
		}
		if rec.IsEvent() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// getSheet prefers the earnings sheet and falls back to the first one.
func getSheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if sheet, ok := f.Sheet[SheetName]; ok {
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
