package pairing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"gopkg.in/yaml.v3"
)

// TeamMapping resolves venue-specific team codes to a canonical name per
// league. The on-disk form is JSON
//
//	{"nba": {"kalshi": {"LAL": "lakers"}, "polymarket": {"lal": "lakers"}}}
//
// or the same tree in YAML when the file ends in .yaml or .yml.
type TeamMapping struct {
	codes map[string]string
}

// NewTeamMapping builds a mapping from league -> venue -> code -> canonical.
func NewTeamMapping(raw map[string]map[string]map[string]string) *TeamMapping {
	m := &TeamMapping{codes: make(map[string]string)}
	for league, venues := range raw {
		for venue, codes := range venues {
			for code, canonical := range codes {
				m.codes[mappingKey(league, domain.Venue(venue), code)] = strings.ToLower(canonical)
			}
		}
	}
	return m
}

// LoadTeamMapping reads a mapping file. A missing file yields an empty
// mapping so single-venue mode can run without one.
func LoadTeamMapping(path string) (*TeamMapping, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewTeamMapping(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("pairing: read team mapping: %w", err)
	}
	var raw map[string]map[string]map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("pairing: decode team mapping %s: %w", path, err)
	}
	return NewTeamMapping(raw), nil
}

// Canonical returns the canonical team for a venue code.
func (m *TeamMapping) Canonical(league string, venue domain.Venue, code string) (string, bool) {
	c, ok := m.codes[mappingKey(league, venue, code)]
	return c, ok
}

// Len returns the number of code mappings.
func (m *TeamMapping) Len() int {
	return len(m.codes)
}

func mappingKey(league string, venue domain.Venue, code string) string {
	return strings.ToLower(league) + "|" + string(venue) + "|" + strings.ToUpper(code)
}
