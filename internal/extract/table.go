package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// TableStrategy locates the history table in a document. Find returns an
// empty selection when the strategy does not apply.
type TableStrategy struct {
	Name string
	Find func(doc *goquery.Document) *goquery.Selection
}

// ClassMarkerStrategy matches the first table whose class attribute contains
// the marker, so suffixed variants such as "MuiTable-root-v2" also match.
func ClassMarkerStrategy(class string) TableStrategy {
	return TableStrategy{
		Name: "class_marker",
		Find: func(doc *goquery.Document) *goquery.Selection {
			if class == "" {
				return doc.Find("table").Slice(0, 0)
			}
			return doc.Find(fmt.Sprintf("table[class*=%q]", class)).First()
		},
	}
}

// MinHeaderCellsStrategy matches the first table with at least n header cells.
func MinHeaderCellsStrategy(n int) TableStrategy {
	return TableStrategy{
		Name: "min_header_cells",
		Find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("table").FilterFunction(func(_ int, t *goquery.Selection) bool {
				return t.Find("th").Length() >= n
			}).First()
		},
	}
}

// TableStrategies returns the ordered strategies for a selector set.
func TableStrategies(sel *Selectors) []TableStrategy {
	return []TableStrategy{
		ClassMarkerStrategy(sel.History.TableClass),
		MinHeaderCellsStrategy(sel.History.MinHeaderCells),
	}
}

// LocateTable tries each strategy in order and returns the first match
// along with the name of the strategy that found it.
func LocateTable(doc *goquery.Document, strategies []TableStrategy) (*goquery.Selection, string) {
	for _, s := range strategies {
		if t := s.Find(doc); t.Length() > 0 {
			return t, s.Name
		}
	}
	return nil, ""
}

// tableHeaders returns normalized header keys from the first row that has
// header cells, or from every th in the table when no row qualifies.
func tableHeaders(table *goquery.Selection) []string {
	cells := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Find("th").Length() > 0
	}).First().Find("th")
	if cells.Length() == 0 {
		cells = table.Find("th")
	}

	headers := make([]string, 0, cells.Length())
	cells.Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, NormalizeHeader(th.Text()))
	})
	return headers
}

// tableRows maps each body row's cells onto headers. The first row is
// treated as the header row and skipped.
func tableRows(table *goquery.Selection, headers []string) []map[string]string {
	var rows []map[string]string
	table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		row := make(map[string]string, len(headers))
		for i, key := range headers {
			if i < cells.Length() {
				row[key] = CleanText(cells.Eq(i).Text())
			}
		}
		rows = append(rows, row)
	})
	return rows
}
