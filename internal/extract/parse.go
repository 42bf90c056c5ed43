// Package extract turns EarningsHub documents into canonical records.
//
// Field parsers in this file are pure functions over cleaned text. Document
// level parsers (history, overview) locate blocks with goquery and feed the
// cell text through them.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/earnings-cli/internal/model"
)

// Marker records whether a value token was explicitly labeled.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerEstimate
	MarkerActual
)

// Value is one parsed numeric token. Value holds the digits, or the opaque
// remainder when the token is not numeric.
type Value struct {
	Value  string
	Unit   string
	Marker Marker
}

// Amount is a value with its unit and no marker.
type Amount struct {
	Value string
	Unit  string
}

// EstAct is the result of disambiguating up to two value tokens.
type EstAct struct {
	Est Amount
	Act Amount
}

var (
	noData = map[string]bool{"-": true, "--": true, "—": true, "N/A": true, "NA": true, "n/a": true, "": true}
	dashes = map[string]bool{"-": true, "--": true, "—": true}

	estRe       = regexp.MustCompile(`(?i)\b(est|estimate)\b`)
	actualRe    = regexp.MustCompile(`(?i)\bactual\b`)
	markerStrip = regexp.MustCompile(`(?i)\(?\b(estimate|est|actual)\b\)?`)
	valueRe     = regexp.MustCompile(`^(-?[\d.]+)\s*([A-Za-z]?)$`)

	quarterRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(Q[1-4]\s+\d{4})`),
		regexp.MustCompile(`(?i)(FY\s+\d{4})`),
		regexp.MustCompile(`(?i)(H[12]\s+\d{4})`),
	}

	indicatorUnitRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(Months?|Mos?|M)\b`)
	indicatorNumRe  = regexp.MustCompile(`\b(\d{1,2})\b`)
	headerSpaceRe   = regexp.MustCompile(`\s+`)
)

const (
	dateTimeLayout = "Mon, Jan 2, 2006, 3:04 PM"
	dateLayout     = "Jan 2, 2006"
	outDateLayout  = "01/02/2006"
	outTimeLayout  = "3:04 PM"
)

// CleanText applies NFKC normalization, collapses whitespace, and maps dash
// placeholders to the empty string.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	t := strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
	if dashes[t] {
		return ""
	}
	return t
}

// NormalizeHeader turns a column heading into a lookup key:
// "Rev. Est" becomes "rev_est" and "EPS %" becomes "eps_pct".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(norm.NFKC.String(h)))
	h = headerSpaceRe.ReplaceAllString(h, "_")
	h = strings.ReplaceAll(h, ".", "")
	return strings.ReplaceAll(h, "%", "pct")
}

// ParseOneValue parses a token such as "$12.3B est". ok is false for
// placeholders. Tokens that do not look numeric are returned verbatim in
// Value with no unit.
func ParseOneValue(raw string) (v Value, ok bool) {
	s := strings.TrimSpace(raw)
	if noData[s] {
		return Value{}, false
	}

	switch {
	case estRe.MatchString(s):
		v.Marker = MarkerEstimate
	case actualRe.MatchString(s):
		v.Marker = MarkerActual
	}

	s = markerStrip.ReplaceAllString(s, "")
	s = strings.NewReplacer("$", "", ",", "", "*", "").Replace(s)
	s = strings.TrimSpace(s)

	m := valueRe.FindStringSubmatch(s)
	if m == nil {
		if s == "" {
			return Value{}, false
		}
		v.Value = s
		return v, true
	}
	v.Value = m[1]
	v.Unit = strings.ToUpper(m[2])
	return v, true
}

// ParseEstAct assigns up to two tokens to estimate and actual. Only the
// first two tokens are considered.
//
// A lone token is an estimate only when marked as one, otherwise it is the
// actual. With two tokens, explicit markers win and the other token fills
// the remaining slot. With no markers at all the order is positional: first
// estimate, second actual.
func ParseEstAct(tokens ...string) EstAct {
	if len(tokens) > 2 {
		tokens = tokens[:2]
	}
	vals := make([]Value, len(tokens))
	for i, t := range tokens {
		vals[i], _ = ParseOneValue(t)
	}

	switch len(vals) {
	case 0:
		return EstAct{}
	case 1:
		if vals[0].Marker == MarkerEstimate {
			return EstAct{Est: vals[0].amount()}
		}
		return EstAct{Act: vals[0].amount()}
	}

	a, b := vals[0], vals[1]
	if a.Marker == MarkerNone && b.Marker == MarkerNone {
		return EstAct{Est: a.amount(), Act: b.amount()}
	}

	est, act := -1, -1
	switch {
	case a.Marker == MarkerEstimate:
		est = 0
	case b.Marker == MarkerEstimate:
		est = 1
	}
	switch {
	case a.Marker == MarkerActual:
		act = 0
	case b.Marker == MarkerActual:
		act = 1
	}
	if est == -1 {
		est = 1 - act
	}
	if act == -1 {
		act = 1 - est
	}
	return EstAct{Est: vals[est].amount(), Act: vals[act].amount()}
}

func (v Value) amount() Amount { return Amount{Value: v.Value, Unit: v.Unit} }

// ParsePercent parses "+2.5%" or "-1,204.0%". Non-numeric input is absent.
func ParsePercent(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	t = strings.NewReplacer("%", "", ",", "").Replace(t)
	f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FormatPercent renders a percentage with two decimals, or "" when absent.
func FormatPercent(f float64, ok bool) string {
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2f", f)
}

// ParseDateTime converts "Wed, Jul 31, 2025, 4:00 PM" to ("07/31/2025",
// "4:00 PM") and "Jul 31, 2025" to ("07/31/2025", ""). Anything else is
// returned cleaned but otherwise unchanged, with no time.
func ParseDateTime(raw string) (date, clock string) {
	cleaned := CleanText(raw)
	if cleaned == "" {
		return "", ""
	}

	for _, suffix := range []string{"ESTIMATE", "EST", "ACTUAL"} {
		if strings.HasSuffix(strings.ToUpper(cleaned), suffix) {
			cleaned = strings.TrimSpace(cleaned[:len(cleaned)-len(suffix)])
		}
	}

	if t, err := time.Parse(dateTimeLayout, cleaned); err == nil {
		return t.Format(outDateLayout), t.Format(outTimeLayout)
	}
	if t, err := time.Parse(dateLayout, cleaned); err == nil {
		return t.Format(outDateLayout), ""
	}
	return cleaned, ""
}

// NormalizeQuarter canonicalizes "q1 2025" to "Q1 2025". FY and half-year
// labels are handled the same way. Unrecognized text is returned cleaned.
func NormalizeQuarter(raw string) string {
	cleaned := CleanText(raw)
	if cleaned == "" {
		return ""
	}
	for _, re := range quarterRes {
		if m := re.FindStringSubmatch(cleaned); m != nil {
			return strings.Join(strings.Fields(strings.ToUpper(m[1])), " ")
		}
	}
	return cleaned
}

// DetermineStatus classifies a result. A surprise percentage decides by its
// sign. Without one, actual >= estimate is a beat. Anything that cannot be
// compared is unknown.
func DetermineStatus(pct *float64, actual, estimate string) model.Status {
	if pct != nil {
		if *pct >= 0 {
			return model.StatusBeat
		}
		return model.StatusMiss
	}
	if actual == "" || estimate == "" {
		return model.StatusUnknown
	}
	a, err := decimal.NewFromString(actual)
	if err != nil {
		return model.StatusUnknown
	}
	e, err := decimal.NewFromString(estimate)
	if err != nil {
		return model.StatusUnknown
	}
	if a.GreaterThanOrEqual(e) {
		return model.StatusBeat
	}
	return model.StatusMiss
}

// ParseIndicator extracts a rating window such as "3 Months" from free
// text, falling back to any bare one or two digit number.
func ParseIndicator(raw string) string {
	cleaned := CleanText(raw)
	if cleaned == "" {
		return ""
	}
	if m := indicatorUnitRe.FindStringSubmatch(cleaned); m != nil {
		n, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%d Months", n)
	}
	if m := indicatorNumRe.FindStringSubmatch(cleaned); m != nil {
		n, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%d Months", n)
	}
	return ""
}

func percentPtr(f float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &f
}
