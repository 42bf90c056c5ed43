package export

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/earnings-cli/internal/model"
)

// EncodeEarningsCSV writes a header row and one row per record. The header
// is written even when records is empty.
func EncodeEarningsCSV(w io.Writer, records []model.EarningsRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(model.EarningsRecord{}); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "export: csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: csv flush")
}

// WriteEarningsCSV writes <TICKER>_eh_earnings.csv under dir.
func WriteEarningsCSV(dir, ticker string, records []model.EarningsRecord) (string, error) {
	return writeAtomic(dir, EarningsCSVName(ticker), func(w io.Writer) error {
		return EncodeEarningsCSV(w, records)
	})
}

// ReadEarningsCSV decodes an exported earnings CSV. Columns are matched by
// header name; unknown columns are ignored.
func ReadEarningsCSV(r io.Reader) ([]model.EarningsRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "export: csv header")
	}

	var out []model.EarningsRecord
	for {
		var rec model.EarningsRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, eris.Wrapf(err, "export: csv line %d", len(out)+2)
		}
		out = append(out, rec)
	}
}
