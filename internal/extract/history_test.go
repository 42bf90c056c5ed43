package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/earnings-cli/internal/model"
)

const historyHeader = `<tr><th>Earnings</th><th>Release Date</th><th>Rev. Est</th><th>Rev. Act</th><th>Rev Surp</th><th>EPS Est</th><th>EPS Act</th><th>EPS Surp</th></tr>`

func historyHTML(tableClass string, rows ...string) string {
	return `<html><body><table class="` + tableClass + `"><thead>` + historyHeader +
		`</thead><tbody>` + strings.Join(rows, "") + `</tbody></table></body></html>`
}

func row(cells ...string) string {
	return "<tr><td>" + strings.Join(cells, "</td><td>") + "</td></tr>"
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseHistory_FullRow(t *testing.T) {
	t.Parallel()

	html := historyHTML("MuiTable-root css-abc",
		row("q1 2025", "Wed, Jul 31, 2025, 4:00 PM", "$12.3B", "$12.9B", "+4.88%", "$1.20", "$1.10", "-8.3%"),
	)

	recs, err := NewParser(nil).ParseHistory(html, "msft")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, model.EarningsRecord{
		Ticker:     "MSFT",
		Quarter:    "Q1 2025",
		Date:       "07/31/2025",
		RevEst:     "12.3",
		RevEstUnit: "B",
		RevAct:     "12.9",
		RevActUnit: "B",
		RevPct:     "4.88",
		RevStatus:  model.StatusBeat,
		EPSEst:     "1.20",
		EPSAct:     "1.10",
		EPSPct:     "-8.30",
		EPSStatus:  model.StatusMiss,
	}, recs[0])
}

func TestParseHistory_StatusFromValuesWithoutPercent(t *testing.T) {
	t.Parallel()

	html := historyHTML("MuiTable-root",
		row("Q2 2025", "Oct 30, 2025", "$4.0B", "$5.0B", "", "$0.40", "$0.38", ""),
	)
	recs, err := NewParser(nil).ParseHistory(html, "AAPL")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].RevPct)
	assert.Equal(t, model.StatusBeat, recs[0].RevStatus)
	assert.Equal(t, model.StatusMiss, recs[0].EPSStatus)
}

func TestParseHistory_DiscardsEmptyRows(t *testing.T) {
	t.Parallel()

	html := historyHTML("MuiTable-root",
		row("-", "--", "-", "—", "", "N/A", "-", ""),
		row("Q3 2025", "Jan 28, 2026", "-", "-", "", "-", "-", ""),
	)
	recs, err := NewParser(nil).ParseHistory(html, "AAPL")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Q3 2025", recs[0].Quarter)
	assert.Equal(t, model.StatusUnknown, recs[0].RevStatus)
}

func TestParseHistory_DedupKeepsFirst(t *testing.T) {
	t.Parallel()

	html := historyHTML("MuiTable-root",
		row("Q1 2025", "Jul 31, 2025", "$12.3B", "$12.9B", "", "", "", ""),
		row("Q1 2025", "Jul 31, 2025", "$99.0B", "$99.9B", "", "", "", ""),
		row("Q4 2024", "Apr 30, 2025", "$11.0B", "$11.5B", "", "", "", ""),
	)
	recs, err := NewParser(nil).ParseHistory(html, "MSFT")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "12.3", recs[0].RevEst)
	assert.Equal(t, "Q4 2024", recs[1].Quarter)
}

// Only non-empty cells reach ParseEstAct, so an upcoming row with just an
// unmarked estimate is recorded as the actual.
func TestParseHistory_LoneEstimateCellBecomesActual(t *testing.T) {
	t.Parallel()

	html := historyHTML("MuiTable-root",
		row("Q2 2026", "Jan 27, 2026", "$80.2B", "-", "", "$3.88", "", ""),
	)
	recs, err := NewParser(nil).ParseHistory(html, "MSFT")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].RevEst)
	assert.Equal(t, "80.2", recs[0].RevAct)
	assert.Equal(t, "B", recs[0].RevActUnit)
	assert.Equal(t, "3.88", recs[0].EPSAct)
	assert.Equal(t, model.StatusUnknown, recs[0].EPSStatus)
}

func TestParseHistory_FallbackTable(t *testing.T) {
	t.Parallel()

	html := `<table><tr><th>a</th></tr></table>` + historyHTML("plain",
		row("Q1 2025", "Jul 31, 2025", "$1B", "$2B", "", "", "", ""),
	)
	recs, err := NewParser(nil).ParseHistory(html, "X")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Q1 2025", recs[0].Quarter)
}

func TestParseHistory_NoTable(t *testing.T) {
	t.Parallel()

	recs, err := NewParser(nil).ParseHistory(`<html><body><p>Symbol not found</p></body></html>`, "X")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLocateTable_Strategies(t *testing.T) {
	t.Parallel()

	strategies := TableStrategies(DefaultSelectors())

	doc := mustDoc(t, `<table class="other"><tr><th>1</th><th>2</th><th>3</th><th>4</th></tr></table>
		<table class="MuiTable-root" id="mui"><tr><th>1</th></tr></table>`)
	table, name := LocateTable(doc, strategies)
	require.NotNil(t, table)
	assert.Equal(t, "class_marker", name)
	assert.Equal(t, "mui", table.AttrOr("id", ""))

	doc = mustDoc(t, `<table id="small"><tr><th>1</th><th>2</th><th>3</th></tr></table>
		<table id="wide"><tr><th>1</th><th>2</th><th>3</th><th>4</th></tr></table>`)
	table, name = LocateTable(doc, strategies)
	require.NotNil(t, table)
	assert.Equal(t, "min_header_cells", name)
	assert.Equal(t, "wide", table.AttrOr("id", ""))

	doc = mustDoc(t, `<table><tr><th>1</th><th>2</th><th>3</th></tr></table>`)
	table, name = LocateTable(doc, strategies)
	assert.Nil(t, table)
	assert.Empty(t, name)
}

func TestClassMarkerStrategy_MatchesSubstring(t *testing.T) {
	t.Parallel()

	s := ClassMarkerStrategy("earnings-table")

	doc := mustDoc(t, `<table class="plain" id="a"></table>
		<table class="css-x1 earnings-table-v2" id="b"></table>`)
	assert.Equal(t, "b", s.Find(doc).AttrOr("id", ""))

	doc = mustDoc(t, `<table class="MuiTable-root css-9z" id="mui"></table>`)
	assert.Equal(t, "mui", ClassMarkerStrategy("MuiTable-root").Find(doc).AttrOr("id", ""))

	doc = mustDoc(t, `<table class="plain"></table>`)
	assert.Zero(t, s.Find(doc).Length())
	assert.Zero(t, ClassMarkerStrategy("").Find(doc).Length())
}

func TestDedupHistory(t *testing.T) {
	t.Parallel()

	in := []model.EarningsRecord{
		{Quarter: "Q1 2025", Date: "07/31/2025", RevEst: "1"},
		{Quarter: "Q1 2025", Date: "07/31/2025", RevEst: "2"},
		{Quarter: "Q1 2025", Date: "08/01/2025", RevEst: "3"},
	}
	out := DedupHistory(in)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].RevEst)
	assert.Equal(t, "3", out[1].RevEst)
	assert.Equal(t, "1", in[0].RevEst, "input is not modified")
}
