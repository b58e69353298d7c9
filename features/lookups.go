package features

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"engine-deals/models"
)

// Place is one named entry of the distance lookup.
type Place struct {
	Name  string  `yaml:"name"`
	Miles float64 `yaml:"miles"`
}

// DistanceTable estimates miles from a fixed reference point using city and
// state lookups. The default table is centred on New York City.
type DistanceTable struct {
	// Cities are matched as substrings, first match wins.
	Cities []Place `yaml:"cities"`
	// States are matched as whole tokens, first match wins.
	States []Place `yaml:"states"`
	// DefaultMiles applies when neither a city nor a state matches.
	DefaultMiles float64 `yaml:"default_miles"`
	// EmptyMiles applies when the location text is empty.
	EmptyMiles float64 `yaml:"empty_miles"`
}

func DefaultDistanceTable() DistanceTable {
	return DistanceTable{
		Cities: []Place{
			{"new york", 0}, {"nyc", 0}, {"manhattan", 0}, {"brooklyn", 10},
			{"philadelphia", 95}, {"boston", 215}, {"washington", 225},
			{"chicago", 790}, {"detroit", 640}, {"atlanta", 870},
			{"miami", 1280}, {"houston", 1630}, {"dallas", 1550},
			{"los angeles", 2800}, {"san francisco", 2900}, {"seattle", 2900},
		},
		States: []Place{
			{"ny", 100}, {"nj", 50}, {"ct", 100}, {"pa", 150}, {"ma", 200},
			{"md", 250}, {"va", 350}, {"nc", 500}, {"sc", 650}, {"ga", 850},
			{"fl", 1200}, {"oh", 500}, {"mi", 650}, {"il", 800}, {"in", 700},
			{"tx", 1600}, {"ca", 2800}, {"wa", 2900}, {"or", 2800},
		},
		DefaultMiles: 300,
		EmptyMiles:   500,
	}
}

// LoadDistanceTable reads a YAML distance table. Fields missing from the
// file keep their default values.
func LoadDistanceTable(path string) (DistanceTable, error) {
	table := DefaultDistanceTable()
	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("features: read distance table: %w", err)
	}

	var file DistanceTable
	if err := yaml.Unmarshal(data, &file); err != nil {
		return table, fmt.Errorf("features: parse distance table %s: %w", path, err)
	}
	if file.Cities != nil {
		table.Cities = file.Cities
	}
	if file.States != nil {
		table.States = file.States
	}
	if file.DefaultMiles > 0 {
		table.DefaultMiles = file.DefaultMiles
	}
	if file.EmptyMiles > 0 {
		table.EmptyMiles = file.EmptyMiles
	}
	return table, nil
}

// Estimate returns the distance in miles for a free-text location.
func (d DistanceTable) Estimate(location string) float64 {
	lower := strings.ToLower(strings.TrimSpace(location))
	if lower == "" {
		return d.EmptyMiles
	}
	for _, c := range d.Cities {
		if strings.Contains(lower, c.Name) {
			return c.Miles
		}
	}

	tokens := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, s := range d.States {
		for _, tok := range tokens {
			if tok == s.Name {
				return s.Miles
			}
		}
	}
	return d.DefaultMiles
}

// ReliabilityTable scores how trustworthy each marketplace's listings are.
type ReliabilityTable struct {
	Scores  map[string]float64
	Default float64
}

func DefaultReliabilityTable() ReliabilityTable {
	return ReliabilityTable{
		Scores: map[string]float64{
			models.PlatformEbay:       0.8,
			models.PlatformCraigslist: 0.6,
			models.PlatformFacebook:   0.7,
			models.PlatformOfferUp:    0.6,
		},
		Default: 0.5,
	}
}

// Score returns the reliability of platform, or the default when unknown.
func (r ReliabilityTable) Score(platform string) float64 {
	if s, ok := r.Scores[platform]; ok {
		return s
	}
	return r.Default
}

// Lookups is the static reference data the Engineer depends on. It is
// treated as read-only once passed to NewEngineer.
type Lookups struct {
	Distances   DistanceTable
	Reliability ReliabilityTable
}

func DefaultLookups() Lookups {
	return Lookups{
		Distances:   DefaultDistanceTable(),
		Reliability: DefaultReliabilityTable(),
	}
}
