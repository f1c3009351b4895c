package domain

import (
	"fmt"
	"strings"
)

// StationCatalogEntry is static reference data for one ground station.
type StationCatalogEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Prefix returns the USAF part of the station ID ("071560-99999" -> "071560"),
// which keys the live report feed.
func (e StationCatalogEntry) Prefix() string {
	id, _, _ := strings.Cut(e.ID, "-")
	return id
}

// Catalog is the ordered, read-only station list that parameterizes downloads.
type Catalog []StationCatalogEntry

// DefaultCatalog returns the French synoptic stations tracked by default.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "071560-99999", Name: "Paris-Orly"},
		{ID: "071570-99999", Name: "Paris-Le Bourget"},
		{ID: "076450-99999", Name: "Lyon"},
		{ID: "076660-99999", Name: "Marseille"},
		{ID: "073730-99999", Name: "Toulouse"},
		{ID: "073840-99999", Name: "Bordeaux"},
		{ID: "071100-99999", Name: "Lille"},
		{ID: "073860-99999", Name: "Nantes"},
		{ID: "074810-99999", Name: "Nice"},
	}
}

// Lookup finds a station by ID or by its USAF prefix.
func (c Catalog) Lookup(id string) (StationCatalogEntry, bool) {
	for _, e := range c {
		if e.ID == id || e.Prefix() == id {
			return e, true
		}
	}
	return StationCatalogEntry{}, false
}

// Subset returns the entries for ids, preserving the order given. Unknown IDs
// are an error so a typo in configuration fails at startup.
func (c Catalog) Subset(ids []string) (Catalog, error) {
	if len(ids) == 0 {
		return c, nil
	}
	out := make(Catalog, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		e, ok := c.Lookup(strings.TrimSpace(id))
		if !ok {
			return nil, fmt.Errorf("station %q is not in the catalog", id)
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out, nil
}

// IDs returns the station IDs in catalog order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c))
	for i, e := range c {
		ids[i] = e.ID
	}
	return ids
}

// Validate checks that every entry has a unique, non-empty ID.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("station catalog is empty")
	}
	seen := make(map[string]bool, len(c))
	for i, e := range c {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("station catalog entry %d has no id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate station id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
