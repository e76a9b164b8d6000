package models

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
)

// MatchReason explains how a candidate was produced.
type MatchReason string

// Match reason constants.
const (
	ReasonExact  MatchReason = "exact"
	ReasonAlias  MatchReason = "alias"
	ReasonPrefix MatchReason = "prefix"
	ReasonFuzzy  MatchReason = "fuzzy"
)

// Candidate is a ranked canonical-state proposal for an unclean value.
type Candidate struct {
	CanonicalID   uuid.UUID   `json:"canonical_id"`
	CanonicalName string      `json:"canonical_name"`
	Score         int         `json:"score"` // 0-100
	Reason        MatchReason `json:"reason"`
}

// MappingStatus is the lifecycle state of a mapping entry.
type MappingStatus string

// Mapping entry status constants. Committed and discarded are terminal.
const (
	MappingPending   MappingStatus = "pending"
	MappingApproved  MappingStatus = "approved"
	MappingRejected  MappingStatus = "rejected"
	MappingCommitted MappingStatus = "committed"
	MappingDiscarded MappingStatus = "discarded"
)

// MappingEntry links one unclean value to its chosen canonical state,
// with the candidates and confidence that justify the choice.
type MappingEntry struct {
	UncleanValue      string        `json:"unclean_value"`
	Occurrences       int           `json:"occurrences"`
	ChosenCanonicalID *uuid.UUID    `json:"chosen_canonical_id,omitempty"`
	TopCandidates     []Candidate   `json:"top_candidates"` // at most 5
	Confidence        int           `json:"confidence"`     // 0-100
	AutoSelected      bool          `json:"auto_selected"`
	UserOverridden    bool          `json:"user_overridden"`
	Status            MappingStatus `json:"status"`

	// AutoCanonicalID remembers the auto-selection choice so a later manual
	// approval can tell an override from a confirmation.
	AutoCanonicalID *uuid.UUID `json:"-"`
}

// Validate checks the entry's structural invariants against the given
// auto-selection threshold. Violations indicate a core bug, never bad input.
func (e *MappingEntry) Validate(autoThreshold int) error {
	if e.AutoSelected {
		if e.Confidence < autoThreshold {
			return fmt.Errorf("%w: %q auto-selected below threshold (%d < %d)",
				apperrors.ErrInvariantViolation, e.UncleanValue, e.Confidence, autoThreshold)
		}
		if e.UserOverridden {
			return fmt.Errorf("%w: %q is both auto-selected and user-overridden",
				apperrors.ErrInvariantViolation, e.UncleanValue)
		}
	}
	if e.Status == MappingApproved && e.ChosenCanonicalID == nil {
		return fmt.Errorf("%w: %q approved without a chosen canonical state",
			apperrors.ErrInvariantViolation, e.UncleanValue)
	}
	if len(e.TopCandidates) > 5 {
		return fmt.Errorf("%w: %q carries %d candidates",
			apperrors.ErrInvariantViolation, e.UncleanValue, len(e.TopCandidates))
	}
	return nil
}

// MappingSummary counts entries by disposition.
type MappingSummary struct {
	Approved       int `json:"approved"`
	Pending        int `json:"pending"`
	Rejected       int `json:"rejected"`
	AutoSelected   int `json:"auto_selected"`
	UserOverridden int `json:"user_overridden"`
}

// MappingSet is the in-session editable proposal: an ordered set of mapping
// entries keyed by unclean value. It lives only for the duration of a
// reconciliation session.
type MappingSet struct {
	order   []string
	entries map[string]*MappingEntry
}

// NewMappingSet returns an empty mapping set.
func NewMappingSet() *MappingSet {
	return &MappingSet{entries: make(map[string]*MappingEntry)}
}

// Add appends an entry, keeping insertion order. An entry for the same
// unclean value replaces the old one in place.
func (s *MappingSet) Add(entry *MappingEntry) {
	if _, exists := s.entries[entry.UncleanValue]; !exists {
		s.order = append(s.order, entry.UncleanValue)
	}
	s.entries[entry.UncleanValue] = entry
}

// Get returns the entry for an unclean value.
func (s *MappingSet) Get(uncleanValue string) (*MappingEntry, bool) {
	e, ok := s.entries[uncleanValue]
	return e, ok
}

// Entries returns all entries in insertion order.
func (s *MappingSet) Entries() []*MappingEntry {
	out := make([]*MappingEntry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.entries[k])
	}
	return out
}

// Approved returns the approved entries in insertion order. Only these
// participate in a commit.
func (s *MappingSet) Approved() []*MappingEntry {
	var out []*MappingEntry
	for _, k := range s.order {
		if e := s.entries[k]; e.Status == MappingApproved {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (s *MappingSet) Len() int {
	return len(s.order)
}

// Summary counts entries by status and selection kind.
func (s *MappingSet) Summary() MappingSummary {
	var sum MappingSummary
	for _, k := range s.order {
		e := s.entries[k]
		switch e.Status {
		case MappingApproved, MappingCommitted:
			sum.Approved++
		case MappingPending:
			sum.Pending++
		case MappingRejected, MappingDiscarded:
			sum.Rejected++
		}
		if e.AutoSelected {
			sum.AutoSelected++
		}
		if e.UserOverridden {
			sum.UserOverridden++
		}
	}
	return sum
}
