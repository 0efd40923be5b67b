package normalize

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

type zoneRule struct {
	Zone     string   `yaml:"zone"`
	Contains []string `yaml:"contains"`
	Regions  []string `yaml:"regions"`
}

type tableFile struct {
	JobTitles map[string]string `yaml:"job_titles"`
	Companies map[string]string `yaml:"companies"`
	Cities    map[string]string `yaml:"cities"`
	Timezones []zoneRule        `yaml:"timezones"`
}

// Tables holds the alias lookups used by the normalizer. Keys are lowercase.
type Tables struct {
	JobTitles map[string]string
	Companies map[string]string
	Cities    map[string]string
	Timezones []zoneRule
}

var (
	tablesOnce sync.Once
	defaults   *Tables
)

// DefaultTables returns the embedded tables. It panics if the embedded
// YAML is malformed, which is a build defect.
func DefaultTables() *Tables {
	tablesOnce.Do(func() {
		t, err := ParseTables(tablesYAML)
		if err != nil {
			panic(err)
		}
		defaults = t
	})
	return defaults
}

// ParseTables decodes a tables document. Each canonical value is also
// registered as its own key.
func ParseTables(data []byte) (*Tables, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "normalize: parse tables")
	}
	return &Tables{
		JobTitles: aliasMap(f.JobTitles, collapseKey),
		Companies: aliasMap(f.Companies, collapseKey),
		Cities:    aliasMap(f.Cities, locationKey),
		Timezones: f.Timezones,
	}, nil
}

func aliasMap(in map[string]string, key func(string) string) map[string]string {
	out := make(map[string]string, len(in)*2)
	for _, v := range in {
		out[key(v)] = v
	}
	for k, v := range in {
		out[key(k)] = v
	}
	return out
}

// collapseKey lowercases s and collapses internal whitespace.
func collapseKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// locationKey lowercases each comma-separated part and rejoins with ", ".
func locationKey(s string) string {
	parts := splitLocation(s)
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ", ")
}

func splitLocation(s string) []string {
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
