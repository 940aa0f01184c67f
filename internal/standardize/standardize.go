// Package standardize implements the name-standardization component of the
// Transform Stage (§4.6 steps 2-4): mapping raw, free-form country, sector,
// and status strings scraped from source sites to a canonical vocabulary.
// It is grounded on the original NameStandardizer, which built the same
// alias -> canonical maps from JSON configuration files and applied them the
// same explode/lowercase/map/regroup way.
package standardize

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed config/*.json
var embeddedConfig embed.FS

// UnknownValue is substituted for any raw value absent from the alias map,
// matching the original's "Unknown" sentinel.
const UnknownValue = "Unknown"

// Standardizer holds the three alias -> canonical maps used to normalize
// project and investment metadata.
type Standardizer struct {
	countryMap map[string]string
	sectorMap  map[string]string
	statusMap  map[string]string
}

// New builds a Standardizer from the embedded default configuration
// (internal/standardize/config/*.json), the Go equivalent of the original's
// CONFIG_DIR_PATH-relative JSON files.
func New() (*Standardizer, error) {
	countries, err := loadAliasMap(embeddedConfig, "config/countries.json")
	if err != nil {
		return nil, fmt.Errorf("failed to load country mappings: %w", err)
	}
	sectors, err := loadAliasMap(embeddedConfig, "config/sectors.json")
	if err != nil {
		return nil, fmt.Errorf("failed to load sector mappings: %w", err)
	}
	statuses, err := loadAliasMap(embeddedConfig, "config/statuses.json")
	if err != nil {
		return nil, fmt.Errorf("failed to load status mappings: %w", err)
	}
	return &Standardizer{countryMap: countries, sectorMap: sectors, statusMap: statuses}, nil
}

// NewFromMaps builds a Standardizer from already-decoded canonical -> aliases
// maps, bypassing the embedded files. Used by tests and by callers that want
// to override the default vocabulary.
func NewFromMaps(countries, sectors, statuses map[string][]string) *Standardizer {
	return &Standardizer{
		countryMap: invertAliasMap(countries),
		sectorMap:  invertAliasMap(sectors),
		statusMap:  invertAliasMap(statuses),
	}
}

func loadAliasMap(fsys embed.FS, path string) (map[string]string, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return invertAliasMap(raw), nil
}

// invertAliasMap restructures a canonical-name -> aliases map into an
// alias -> canonical-name map, the same inversion the original performed
// in _build_data_store.
func invertAliasMap(canonicalToAliases map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, aliases := range canonicalToAliases {
		for _, alias := range aliases {
			out[strings.ToLower(strings.TrimSpace(alias))] = canonical
		}
	}
	return out
}

// mapExplodedList splits raw on commas, lowercases and trims each part, maps
// each through the alias table (defaulting to UnknownValue), deduplicates,
// sorts, and rejoins with ", " -- the original's explode/map/regroup pattern
// used for countries and sectors, which may each hold more than one value
// per record (§8 Scenario 4).
func mapExplodedList(raw string, aliasMap map[string]string) string {
	if strings.TrimSpace(raw) == "" {
		return UnknownValue
	}

	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	var mapped []string
	for _, part := range parts {
		key := strings.ToLower(strings.TrimSpace(part))
		standard, ok := aliasMap[key]
		if !ok {
			standard = UnknownValue
		}
		if _, dup := seen[standard]; dup {
			continue
		}
		seen[standard] = struct{}{}
		mapped = append(mapped, standard)
	}

	sort.Strings(mapped)
	return strings.Join(mapped, ", ")
}

// MapCountries standardizes a comma-separated country string, e.g.
// "kosovo*,indien" -> "India, Kosovo" (§8 Scenario 4).
func (s *Standardizer) MapCountries(raw string) string {
	return mapExplodedList(raw, s.countryMap)
}

// MapSectors standardizes a comma-separated sector string the same way
// MapCountries does.
func (s *Standardizer) MapSectors(raw string) string {
	return mapExplodedList(raw, s.sectorMap)
}

// MapStatus standardizes a single raw status string to one of "Cancelled",
// "Completed", "Ongoing", "Pending", or UnknownValue. Unlike MapCountries and
// MapSectors, a status value is looked up whole -- it is never split on
// commas, since a single status phrase may itself contain one (§8
// Scenario 5, e.g. "board approved, pending signing" -> "Pending").
func (s *Standardizer) MapStatus(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if standard, ok := s.statusMap[key]; ok {
		return standard
	}
	return UnknownValue
}

// MapStatuses applies MapStatus to each element of raw, preserving order
// (§8 Scenario 5).
func (s *Standardizer) MapStatuses(raw []string) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = s.MapStatus(v)
	}
	return out
}
