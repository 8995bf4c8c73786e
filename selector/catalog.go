package selector

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Entry holds the selector candidates for one logical element, grouped by
// strategy. Group order inside the struct mirrors resolution priority.
type Entry struct {
	Semantic     []string `yaml:"semantic,omitempty" json:"semantic,omitempty"`
	Structural   []string `yaml:"structural,omitempty" json:"structural,omitempty"`
	ClassBased   []string `yaml:"class_based,omitempty" json:"class_based,omitempty"`
	ContentBased []string `yaml:"content_based,omitempty" json:"content_based,omitempty"`
}

// Candidates returns the candidate list for one strategy group.
func (e Entry) Candidates(s Strategy) []string {
	switch s {
	case StrategySemantic:
		return e.Semantic
	case StrategyStructural:
		return e.Structural
	case StrategyClassBased:
		return e.ClassBased
	case StrategyContentBased:
		return e.ContentBased
	}
	return nil
}

// Total counts candidates across all groups.
func (e Entry) Total() int {
	return len(e.Semantic) + len(e.Structural) + len(e.ClassBased) + len(e.ContentBased)
}

// Catalog maps logical element names to their selector candidates. It is
// pure configuration data: swappable per target-site version without
// touching the resolution engine.
type Catalog map[string]Entry

// RequiredElements are the logical names the scraper orchestrators depend
// on. Any catalog used for a full search must define all of them.
var RequiredElements = []string{
	"origin_input",
	"destination_input",
	"departure_date",
	"return_date",
	"search_button",
	"flight_results",
}

// Default returns the built-in Google Flights catalog. The literal
// selectors are expected to rot as the site changes; replace them via a
// catalog file rather than editing code.
func Default() Catalog {
	return Catalog{
		"origin_input": {
			Semantic: []string{
				`input[placeholder*="Where from"]`,
				`input[aria-label*="Where from"]`,
				`input[data-testid*="origin"]`,
			},
			Structural: []string{
				`div[role="search"] input:first-of-type`,
			},
			ClassBased: []string{
				`.II2One .TP4Lpb input`,
			},
		},
		"destination_input": {
			Semantic: []string{
				`input[placeholder*="Where to"]`,
				`input[aria-label*="Where to"]`,
				`input[data-testid*="destination"]`,
			},
			Structural: []string{
				`div[role="search"] input:nth-of-type(2)`,
			},
			ClassBased: []string{
				`.vxNK6d .TP4Lpb input`,
			},
		},
		"departure_date": {
			Semantic: []string{
				`input[placeholder*="Departure"]`,
				`input[aria-label*="Departure"]`,
			},
			Structural: []string{
				`div[jsname="I74bwc"] input:first-of-type`,
			},
			ClassBased: []string{
				`.TP4Lpb input[type="text"]`,
			},
		},
		"return_date": {
			Semantic: []string{
				`input[placeholder*="Return"]`,
				`input[aria-label*="Return"]`,
			},
			Structural: []string{
				`div[jsname="I74bwc"] input:nth-of-type(2)`,
			},
		},
		"search_button": {
			Semantic: []string{
				`button[aria-label*="Search"]`,
				`button[data-testid*="search"]`,
			},
			Structural: []string{
				`div[jsname="c6xFrd"] button`,
			},
			ClassBased: []string{
				`.VfPpkd-LgbsSe[jsname="LgbsSe"]`,
				`.RNNXgb button`,
			},
			ContentBased: []string{
				"text=Search",
			},
		},
		"flight_results": {
			Semantic: []string{
				`[data-testid="flight-offer"]`,
				`div[aria-label*="flights"] ul`,
			},
			Structural: []string{
				`div[role="tabpanel"] ul`,
				`main ul`,
			},
			ClassBased: []string{
				`.pIav2d`,
				`.Rk10dc`,
			},
		},
	}
}

// Entry looks up one logical element.
func (c Catalog) Entry(name string) (Entry, bool) {
	e, ok := c[name]
	return e, ok
}

// Names returns the defined logical names, sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge overlays other on top of c, returning a new catalog. Entries in
// other replace same-named entries wholesale (no per-group merging, so a
// site-version file fully controls each element it mentions).
func (c Catalog) Merge(other Catalog) Catalog {
	merged := make(Catalog, len(c)+len(other))
	for name, e := range c {
		merged[name] = e
	}
	for name, e := range other {
		merged[name] = e
	}
	return merged
}

// Validate compiles every CSS candidate and checks content queries for a
// non-empty needle. Returns the first problem found.
func (c Catalog) Validate() error {
	for _, name := range c.Names() {
		entry := c[name]
		if entry.Total() == 0 {
			return fmt.Errorf("catalog entry %q has no selector candidates", name)
		}
		for _, group := range StrategyOrder() {
			for _, sel := range entry.Candidates(group) {
				if strings.HasPrefix(sel, TextPrefix) {
					if strings.TrimSpace(strings.TrimPrefix(sel, TextPrefix)) == "" {
						return fmt.Errorf("catalog entry %q: empty text query in group %s", name, group)
					}
					continue
				}
				if _, err := cascadia.Parse(sel); err != nil {
					return fmt.Errorf("catalog entry %q: invalid CSS selector %q in group %s: %w", name, sel, group, err)
				}
			}
		}
	}
	return nil
}

// ValidateRequired checks that every required logical element is present
// with at least one semantic candidate.
func (c Catalog) ValidateRequired() error {
	for _, name := range RequiredElements {
		entry, ok := c[name]
		if !ok {
			return fmt.Errorf("catalog is missing required element %q", name)
		}
		if len(entry.Semantic) == 0 {
			return fmt.Errorf("catalog entry %q has no semantic candidates", name)
		}
	}
	return nil
}

// LoadFile reads a YAML catalog file.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// WriteFile writes the catalog as YAML, creating or truncating path.
func (c Catalog) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}
