package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/earnings-cli/internal/model"
)

// Parser extracts records from EarningsHub documents using a selector set.
type Parser struct {
	sel        *Selectors
	strategies []TableStrategy
}

// NewParser creates a Parser. A nil selector set uses the defaults.
func NewParser(sel *Selectors) *Parser {
	if sel == nil {
		sel = DefaultSelectors()
	}
	return &Parser{sel: sel, strategies: TableStrategies(sel)}
}

// ParseHistory extracts earnings history rows, discarding rows that do not
// describe an event and collapsing duplicates on (quarter, date).
func (p *Parser) ParseHistory(html, ticker string) ([]model.EarningsRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse history document")
	}

	table, strategy := LocateTable(doc, p.strategies)
	if table == nil {
		zap.L().Warn("extract: no earnings table found", zap.String("ticker", ticker))
		return nil, nil
	}

	headers := tableHeaders(table)
	if len(headers) == 0 {
		return nil, nil
	}

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var records []model.EarningsRecord
	for _, row := range tableRows(table, headers) {
		if rec, ok := historyRecord(row, ticker); ok {
			records = append(records, rec)
		}
	}
	records = DedupHistory(records)

	zap.L().Debug("extract: parsed history",
		zap.String("ticker", ticker),
		zap.String("strategy", strategy),
		zap.Int("rows", len(records)),
	)
	return records, nil
}

// historyRecord builds a record from one header-keyed row. ok is false when
// the row carries no quarter, date, or estimate/actual value.
func historyRecord(row map[string]string, ticker string) (model.EarningsRecord, bool) {
	quarter := NormalizeQuarter(firstOf(row, "earnings", "quarter"))
	date, _ := ParseDateTime(firstOf(row, "release_date", "date"))

	rev := ParseEstAct(nonEmpty(row["rev_est"], row["rev_act"])...)
	eps := ParseEstAct(nonEmpty(row["eps_est"], row["eps_act"])...)

	revPct, revOK := ParsePercent(firstOf(row, "rev_surp", "rev_pct", "rev_surp_pct"))
	epsPct, epsOK := ParsePercent(firstOf(row, "eps_surp", "eps_pct", "eps_surp_pct"))

	rec := model.EarningsRecord{
		Ticker:     ticker,
		Quarter:    quarter,
		Date:       date,
		RevEst:     rev.Est.Value,
		RevEstUnit: rev.Est.Unit,
		RevAct:     rev.Act.Value,
		RevActUnit: rev.Act.Unit,
		RevPct:     FormatPercent(revPct, revOK),
		RevStatus:  DetermineStatus(percentPtr(revPct, revOK), rev.Act.Value, rev.Est.Value),
		EPSEst:     eps.Est.Value,
		EPSAct:     eps.Act.Value,
		EPSPct:     FormatPercent(epsPct, epsOK),
		EPSStatus:  DetermineStatus(percentPtr(epsPct, epsOK), eps.Act.Value, eps.Est.Value),
	}
	return rec, rec.IsEvent()
}

// DedupHistory keeps the first record for each (quarter, date) pair.
func DedupHistory(records []model.EarningsRecord) []model.EarningsRecord {
	type key struct{ quarter, date string }
	seen := make(map[key]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		k := key{r.Quarter, r.Date}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func firstOf(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
