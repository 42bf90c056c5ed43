package extract

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsYAML []byte

// Selectors holds the CSS selectors used to locate blocks in each document.
type Selectors struct {
	History  HistorySelectors  `yaml:"history"`
	Company  CompanySelectors  `yaml:"company"`
	Analyst  AnalystSelectors  `yaml:"analyst"`
	Upcoming UpcomingSelectors `yaml:"upcoming"`
	Latest   LatestSelectors   `yaml:"latest"`
}

type HistorySelectors struct {
	TableClass     string `yaml:"table_class"`
	MinHeaderCells int    `yaml:"min_header_cells"`
}

type CompanySelectors struct {
	Container string `yaml:"container"`
	Name      string `yaml:"name"`
}

type AnalystSelectors struct {
	Container      string `yaml:"container"`
	IndicatorBlock string `yaml:"indicator_block"`
	RatingBlock    string `yaml:"rating_block"`
	Label          string `yaml:"label"`
	Value          string `yaml:"value"`
}

type UpcomingSelectors struct {
	Container string `yaml:"container"`
	DateBlock string `yaml:"date_block"`
	Quarter   string `yaml:"quarter"`
	DateTime  string `yaml:"date_time"`
	EstBlock  string `yaml:"est_block"`
	EstLabel  string `yaml:"est_label"`
	EstValue  string `yaml:"est_value"`
}

type LatestSelectors struct {
	Container      string   `yaml:"container"`
	DateBlock      string   `yaml:"date_block"`
	Quarter        string   `yaml:"quarter"`
	DateTime       string   `yaml:"date_time"`
	MetricsBlock   string   `yaml:"metrics_block"`
	MetricItem     string   `yaml:"metric_item"`
	Label          string   `yaml:"label"`
	EstValue       string   `yaml:"est_value"`
	ActValue       string   `yaml:"act_value"`
	PercentClasses []string `yaml:"percent_classes"`
}

// DefaultSelectors returns the built-in selector set.
func DefaultSelectors() *Selectors {
	var s Selectors
	if err := yaml.Unmarshal(defaultSelectorsYAML, &s); err != nil {
		panic(eris.Wrap(err, "extract: embedded selectors"))
	}
	return &s
}

// LoadSelectors reads an override file on top of the defaults. Keys missing
// from the file keep their default. An empty path returns the defaults.
func LoadSelectors(path string) (*Selectors, error) {
	s := DefaultSelectors()
	if path == "" {
		return s, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read selectors %s", path)
	}
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, eris.Wrapf(err, "extract: parse selectors %s", path)
	}
	if s.History.MinHeaderCells <= 0 {
		return nil, eris.Errorf("extract: selectors %s: history.min_header_cells must be > 0", path)
	}
	return s, nil
}
