package model

// Overview is the JSON export shape for a ticker's overview and analyst
// documents. Absent values serialize as null.
type Overview struct {
	Company        Company        `json:"company"`
	AnalystRatings AnalystRatings `json:"analyst_ratings"`
	Upcoming       Upcoming       `json:"upcoming"`
	Latest         Latest         `json:"latest"`
}

// Company identifies the subject.
type Company struct {
	Ticker      string  `json:"ticker"`
	CompanyName *string `json:"company_name"`
}

// AnalystRatings is the Buy/Hold/Sell distribution over a duration window.
type AnalystRatings struct {
	Indicator *string `json:"indicator"`
	Buy       *string `json:"Buy"`
	Hold      *string `json:"Hold"`
	Sell      *string `json:"Sell"`
}

// HasDistribution reports whether any rating count was found.
func (a AnalystRatings) HasDistribution() bool {
	return a.Buy != nil || a.Hold != nil || a.Sell != nil
}

// Upcoming describes the next scheduled report.
type Upcoming struct {
	Ticker  string  `json:"ticker"`
	Quarter *string `json:"quarter"`
	Date    *string `json:"date"`
	Time    *string `json:"time"`
	RevEst  *string `json:"rev_est"`
	RevUnit *string `json:"rev_unit"`
	EPSEst  *string `json:"eps_est"`
}

// Latest describes the most recent reported quarter.
type Latest struct {
	Ticker     string   `json:"ticker"`
	Quarter    *string  `json:"quarter"`
	Date       *string  `json:"date"`
	Time       *string  `json:"time"`
	RevEst     *string  `json:"rev_est"`
	RevEstUnit *string  `json:"rev_est_unit"`
	RevAct     *string  `json:"rev_act"`
	RevActUnit *string  `json:"rev_act_unit"`
	RevPrc     *float64 `json:"rev_prc"`
	RevSta     *Status  `json:"rev_sta"`
	EPSEst     *string  `json:"eps_est"`
	EPSAct     *string  `json:"eps_act"`
	EPSPrc     *float64 `json:"eps_prc"`
	EPSSta     *Status  `json:"eps_sta"`
}

// StrPtr returns nil for empty strings.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StatusPtr returns nil for StatusUnknown.
func StatusPtr(s Status) *Status {
	if s == StatusUnknown {
		return nil
	}
	return &s
}
