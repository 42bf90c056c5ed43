package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Status classifies an actual value against its estimate.
type Status string

const (
	StatusBeat    Status = "Beat"
	StatusMiss    Status = "Miss"
	StatusUnknown Status = ""
)

// ErrUnsupportedDateFormat is returned when a record's report date matches
// none of the accepted layouts.
var ErrUnsupportedDateFormat = eris.New("unsupported date format")

// reportDateLayouts are tried in order when converting a record to a row.
var reportDateLayouts = []string{"01/02/2006", "02/01/2006", "2006-01-02"}

// EarningsRecord is one normalized earnings event as extracted from the
// history table. Values are canonical text; empty means absent.
type EarningsRecord struct {
	Ticker     string `json:"ticker" csv:"ticker"`
	Quarter    string `json:"quarter" csv:"quarter"`
	Date       string `json:"date" csv:"date"`
	RevEst     string `json:"rev_est" csv:"rev_est"`
	RevEstUnit string `json:"rev_est_unit" csv:"rev_est_unit"`
	RevAct     string `json:"rev_act" csv:"rev_act"`
	RevActUnit string `json:"rev_act_unit" csv:"rev_act_unit"`
	RevPct     string `json:"rev_pct" csv:"rev_pct"`
	RevStatus  Status `json:"rev_status" csv:"rev_status"`
	EPSEst     string `json:"eps_est" csv:"eps_est"`
	EPSAct     string `json:"eps_act" csv:"eps_act"`
	EPSPct     string `json:"eps_pct" csv:"eps_pct"`
	EPSStatus  Status `json:"eps_status" csv:"eps_status"`
}

// CSVColumns is the export column order.
var CSVColumns = []string{
	"ticker", "quarter", "date",
	"rev_est", "rev_est_unit", "rev_act", "rev_act_unit", "rev_pct", "rev_status",
	"eps_est", "eps_act", "eps_pct", "eps_status",
}

// Values returns the record's fields in CSVColumns order.
func (r EarningsRecord) Values() []string {
	return []string{
		r.Ticker, r.Quarter, r.Date,
		r.RevEst, r.RevEstUnit, r.RevAct, r.RevActUnit, r.RevPct, string(r.RevStatus),
		r.EPSEst, r.EPSAct, r.EPSPct, string(r.EPSStatus),
	}
}

// IsEvent reports whether the record carries anything that identifies an
// earnings event. Records that fail this are discarded.
func (r EarningsRecord) IsEvent() bool {
	for _, s := range []string{r.Quarter, r.Date, r.RevEst, r.RevAct, r.EPSEst, r.EPSAct} {
		if s != "" {
			return true
		}
	}
	return false
}

// EarningsRow is the persisted form of an EarningsRecord.
type EarningsRow struct {
	ID         int64               `json:"id"`
	Ticker     string              `json:"ticker"`
	Quarter    string              `json:"quarter"`
	ReportDate time.Time           `json:"report_date"`
	RevEst     decimal.NullDecimal `json:"rev_est"`
	RevEstUnit string              `json:"rev_est_unit,omitempty"`
	RevAct     decimal.NullDecimal `json:"rev_act"`
	RevActUnit string              `json:"rev_act_unit,omitempty"`
	RevPct     decimal.NullDecimal `json:"rev_pct"`
	RevStatus  Status              `json:"rev_status,omitempty"`
	EPSEst     decimal.NullDecimal `json:"eps_est"`
	EPSAct     decimal.NullDecimal `json:"eps_act"`
	EPSPct     decimal.NullDecimal `json:"eps_pct"`
	EPSStatus  Status              `json:"eps_status,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// RecordToRow converts an extracted record into a row ready for upsert.
// defaultTicker fills in a missing ticker. The report date is required and
// must match one of the accepted layouts.
func RecordToRow(rec EarningsRecord, defaultTicker string) (EarningsRow, error) {
	ticker := strings.TrimSpace(rec.Ticker)
	if ticker == "" {
		ticker = strings.TrimSpace(defaultTicker)
	}
	if ticker == "" {
		return EarningsRow{}, eris.New("model: record has no ticker")
	}

	date, err := ParseReportDate(rec.Date)
	if err != nil {
		return EarningsRow{}, err
	}

	return EarningsRow{
		Ticker:     strings.ToUpper(ticker),
		Quarter:    rec.Quarter,
		ReportDate: date,
		RevEst:     ToDecimal(rec.RevEst),
		RevEstUnit: rec.RevEstUnit,
		RevAct:     ToDecimal(rec.RevAct),
		RevActUnit: rec.RevActUnit,
		RevPct:     ToDecimal(rec.RevPct),
		RevStatus:  rec.RevStatus,
		EPSEst:     ToDecimal(rec.EPSEst),
		EPSAct:     ToDecimal(rec.EPSAct),
		EPSPct:     ToDecimal(rec.EPSPct),
		EPSStatus:  rec.EPSStatus,
	}, nil
}

// ParseReportDate parses a canonical report date.
func ParseReportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrUnsupportedDateFormat, "model: report date %q", s)
}

// ToDecimal parses a numeric text value, ignoring thousands separators.
// Anything unparseable is treated as absent.
func ToDecimal(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
