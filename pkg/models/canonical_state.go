package models

import (
	"github.com/google/uuid"

	"github.com/reachcrm-inc/statecore-engine/pkg/normalize"
)

// CanonicalState is an authoritative state name with its known aliases.
// Immutable for the lifetime of a reconciliation session.
type CanonicalState struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Aliases []string  `json:"aliases,omitempty"`
}

// CatalogueEntry pairs a canonical state with its precomputed normalized name.
type CatalogueEntry struct {
	State          CanonicalState
	NormalizedName string
}

// AliasBinding links a normalized alias to the canonical state it names.
type AliasBinding struct {
	Alias       string
	CanonicalID uuid.UUID
}

// Catalogue is the in-memory read-only set of canonical states, indexed by
// id, normalized name, and normalized alias. Loaded once per session.
type Catalogue struct {
	entries []CatalogueEntry
	byID    map[uuid.UUID]int
	byName  map[string]int
	byAlias map[string]uuid.UUID
}

// NewCatalogue builds a catalogue with its lookup indices. When two states
// normalize to the same name, the first wins; duplicate aliases resolve to
// the first state that declared them.
func NewCatalogue(states []CanonicalState) *Catalogue {
	c := &Catalogue{
		entries: make([]CatalogueEntry, 0, len(states)),
		byID:    make(map[uuid.UUID]int, len(states)),
		byName:  make(map[string]int, len(states)),
		byAlias: make(map[string]uuid.UUID),
	}
	for _, st := range states {
		idx := len(c.entries)
		normName := normalize.Normalize(st.Name)
		c.entries = append(c.entries, CatalogueEntry{State: st, NormalizedName: normName})
		c.byID[st.ID] = idx
		if _, exists := c.byName[normName]; !exists {
			c.byName[normName] = idx
		}
		for _, alias := range st.Aliases {
			normAlias := normalize.Normalize(alias)
			if normAlias == "" {
				continue
			}
			if _, exists := c.byAlias[normAlias]; !exists {
				c.byAlias[normAlias] = st.ID
			}
		}
	}
	return c
}

// ByID returns the canonical state with the given id.
func (c *Catalogue) ByID(id uuid.UUID) (CanonicalState, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return CanonicalState{}, false
	}
	return c.entries[idx].State, true
}

// ByName returns the canonical state whose name normalizes to the same form
// as the given string.
func (c *Catalogue) ByName(name string) (CanonicalState, bool) {
	idx, ok := c.byName[normalize.Normalize(name)]
	if !ok {
		return CanonicalState{}, false
	}
	return c.entries[idx].State, true
}

// AliasTarget resolves an already-normalized alias to a canonical state id.
func (c *Catalogue) AliasTarget(normAlias string) (uuid.UUID, bool) {
	id, ok := c.byAlias[normAlias]
	return id, ok
}

// AllAliases returns every (normalized alias, canonical id) binding.
func (c *Catalogue) AllAliases() []AliasBinding {
	bindings := make([]AliasBinding, 0, len(c.byAlias))
	for alias, id := range c.byAlias {
		bindings = append(bindings, AliasBinding{Alias: alias, CanonicalID: id})
	}
	return bindings
}

// Entries returns all catalogue entries with their normalized names.
func (c *Catalogue) Entries() []CatalogueEntry {
	return c.entries
}

// Len returns the number of canonical states.
func (c *Catalogue) Len() int {
	return len(c.entries)
}
