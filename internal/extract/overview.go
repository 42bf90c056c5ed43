package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/earnings-cli/internal/model"
)

// ParseOverview extracts the company, analyst rating, upcoming, and latest
// blocks. Ratings come from the analyst document when given, otherwise from
// the overview document.
func (p *Parser) ParseOverview(overviewHTML, analystHTML, ticker string) (model.Overview, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	ov, err := goquery.NewDocumentFromReader(strings.NewReader(overviewHTML))
	if err != nil {
		return model.Overview{}, eris.Wrap(err, "extract: parse overview document")
	}
	ratingsDoc := ov
	if strings.TrimSpace(analystHTML) != "" {
		ratingsDoc, err = goquery.NewDocumentFromReader(strings.NewReader(analystHTML))
		if err != nil {
			return model.Overview{}, eris.Wrap(err, "extract: parse analyst document")
		}
	}

	return model.Overview{
		Company:        p.company(ov, ticker),
		AnalystRatings: p.analystRatings(ratingsDoc),
		Upcoming:       p.upcoming(ov, ticker),
		Latest:         p.latest(ov, ticker),
	}, nil
}

func (p *Parser) company(doc *goquery.Document, ticker string) model.Company {
	c := model.Company{Ticker: ticker}
	sel := p.sel.Company
	doc.Find(sel.Container).EachWithBreak(func(_ int, container *goquery.Selection) bool {
		el := container.Find(sel.Name).First()
		if el.Length() == 0 {
			return true
		}
		c.CompanyName = model.StrPtr(CleanText(el.Text()))
		return false
	})
	return c
}

func (p *Parser) analystRatings(doc *goquery.Document) model.AnalystRatings {
	var r model.AnalystRatings
	sel := p.sel.Analyst
	doc.Find(sel.Container).EachWithBreak(func(_ int, container *goquery.Selection) bool {
		if ind := container.Find(sel.IndicatorBlock).First(); ind.Length() > 0 {
			r.Indicator = model.StrPtr(ParseIndicator(spacedText(ind)))
		}

		if block := container.Find(sel.RatingBlock).First(); block.Length() > 0 {
			labels := block.Find(sel.Label)
			values := block.Find(sel.Value)
			if labels.Length() == values.Length() {
				labels.Each(func(i int, lab *goquery.Selection) {
					val := model.StrPtr(CleanText(values.Eq(i).Text()))
					switch CleanText(lab.Text()) {
					case "Buy":
						r.Buy = val
					case "Hold":
						r.Hold = val
					case "Sell":
						r.Sell = val
					}
				})
			}
		}
		return !r.HasDistribution()
	})
	return r
}

func (p *Parser) upcoming(doc *goquery.Document, ticker string) model.Upcoming {
	u := model.Upcoming{Ticker: ticker}
	sel := p.sel.Upcoming
	doc.Find(sel.Container).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if db := c.Find(sel.DateBlock).First(); db.Length() > 0 {
			q := db.Find(sel.Quarter).First()
			dt := db.Find(sel.DateTime).First()
			if q.Length() > 0 && dt.Length() > 0 {
				u.Quarter = model.StrPtr(NormalizeQuarter(q.Text()))
				date, clock := ParseDateTime(dt.Text())
				u.Date, u.Time = model.StrPtr(date), model.StrPtr(clock)
			}
		}

		if eb := c.Find(sel.EstBlock).First(); eb.Length() > 0 {
			labels := eb.Find(sel.EstLabel)
			values := eb.Find(sel.EstValue)
			n := min(labels.Length(), values.Length())
			for i := 0; i < n; i++ {
				// Values in this block are estimates by position, whether or
				// not the page labels them. ParseEstAct would read a lone
				// unmarked value as the actual, so it is not used here.
				v, ok := ParseOneValue(values.Eq(i).Text())
				if !ok {
					continue
				}
				switch strings.ToUpper(strings.TrimSpace(labels.Eq(i).Text())) {
				case "REVENUE":
					u.RevEst, u.RevUnit = model.StrPtr(v.Value), model.StrPtr(v.Unit)
				case "EPS":
					u.EPSEst = model.StrPtr(v.Value)
				}
			}
		}
		return u.Quarter == nil && u.RevEst == nil && u.EPSEst == nil
	})
	return u
}

func (p *Parser) latest(doc *goquery.Document, ticker string) model.Latest {
	l := model.Latest{Ticker: ticker}
	sel := p.sel.Latest
	doc.Find(sel.Container).EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if db := c.Find(sel.DateBlock).First(); db.Length() > 0 {
			q := db.Find(sel.Quarter).First()
			dt := db.Find(sel.DateTime).First()
			if q.Length() > 0 && dt.Length() > 0 {
				l.Quarter = model.StrPtr(NormalizeQuarter(q.Text()))
				date, clock := ParseDateTime(dt.Text())
				l.Date, l.Time = model.StrPtr(date), model.StrPtr(clock)
			}
		}

		mb := c.Find(sel.MetricsBlock).First()
		if mb.Length() == 0 {
			return true
		}

		mb.Find(sel.MetricItem).Each(func(_ int, item *goquery.Selection) {
			label := item.Find(sel.Label).First()
			if label.Length() == 0 {
				return
			}

			var tokens []string
			if est := item.Find(sel.EstValue).First(); est.Length() > 0 {
				tokens = append(tokens, strings.TrimSpace(est.Text()))
			}
			if act := item.Find(sel.ActValue).First(); act.Length() > 0 {
				tokens = append(tokens, strings.TrimSpace(act.Text()))
			}
			pair := ParseEstAct(tokens...)
			pct := p.itemPercent(item)
			status := model.StatusPtr(DetermineStatus(pct, pair.Act.Value, pair.Est.Value))

			text := strings.ToLower(strings.TrimSpace(label.Text()))
			switch {
			case strings.Contains(text, "rev"):
				l.RevEst, l.RevEstUnit = model.StrPtr(pair.Est.Value), model.StrPtr(pair.Est.Unit)
				l.RevAct, l.RevActUnit = model.StrPtr(pair.Act.Value), model.StrPtr(pair.Act.Unit)
				l.RevPrc, l.RevSta = pct, status
			case strings.Contains(text, "eps"):
				l.EPSEst, l.EPSAct = model.StrPtr(pair.Est.Value), model.StrPtr(pair.Act.Value)
				l.EPSPrc, l.EPSSta = pct, status
			}
		})
		return false
	})
	return l
}

// itemPercent returns the first percentage found in a metric item's
// percentage-styled paragraphs.
func (p *Parser) itemPercent(item *goquery.Selection) *float64 {
	var out *float64
	item.Find("p").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !hasAnyClass(el, p.sel.Latest.PercentClasses) {
			return true
		}
		t := strings.TrimSpace(el.Text())
		if !strings.Contains(t, "%") {
			return true
		}
		if f, ok := ParsePercent(t); ok {
			out = &f
			return false
		}
		return true
	})
	return out
}

func hasAnyClass(s *goquery.Selection, classes []string) bool {
	for _, c := range classes {
		if s.HasClass(c) {
			return true
		}
	}
	return false
}

// spacedText joins an element's text nodes with single spaces, so sibling
// elements such as "3" and "Months" do not run together.
func spacedText(s *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if t := strings.TrimSpace(c.Text()); t != "" {
					parts = append(parts, t)
				}
				return
			}
			walk(c)
		})
	}
	walk(s)
	return strings.Join(parts, " ")
}
