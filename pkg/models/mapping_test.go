package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
)

func TestMappingEntryValidate(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		entry   MappingEntry
		wantErr bool
	}{
		{
			name: "auto-selected above threshold",
			entry: MappingEntry{
				UncleanValue:      "panjab",
				ChosenCanonicalID: &id,
				Confidence:        95,
				AutoSelected:      true,
				Status:            MappingApproved,
			},
		},
		{
			name: "auto-selected below threshold",
			entry: MappingEntry{
				UncleanValue:      "panjab",
				ChosenCanonicalID: &id,
				Confidence:        80,
				AutoSelected:      true,
				Status:            MappingApproved,
			},
			wantErr: true,
		},
		{
			name: "auto-selected and user-overridden",
			entry: MappingEntry{
				UncleanValue:      "panjab",
				ChosenCanonicalID: &id,
				Confidence:        95,
				AutoSelected:      true,
				UserOverridden:    true,
				Status:            MappingApproved,
			},
			wantErr: true,
		},
		{
			name: "approved without choice",
			entry: MappingEntry{
				UncleanValue: "panjab",
				Status:       MappingApproved,
			},
			wantErr: true,
		},
		{
			name: "too many candidates",
			entry: MappingEntry{
				UncleanValue:  "panjab",
				Status:        MappingPending,
				TopCandidates: make([]Candidate, 6),
			},
			wantErr: true,
		},
		{
			name: "pending with no choice",
			entry: MappingEntry{
				UncleanValue: "panjab",
				Status:       MappingPending,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate(90)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvariantViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMappingSetOrderAndReplace(t *testing.T) {
	set := NewMappingSet()
	set.Add(&MappingEntry{UncleanValue: "panjab", Status: MappingPending})
	set.Add(&MappingEntry{UncleanValue: "keral", Status: MappingPending})
	set.Add(&MappingEntry{UncleanValue: "panjab", Status: MappingRejected})

	require.Equal(t, 2, set.Len())

	entries := set.Entries()
	assert.Equal(t, "panjab", entries[0].UncleanValue)
	assert.Equal(t, MappingRejected, entries[0].Status)
	assert.Equal(t, "keral", entries[1].UncleanValue)
}

func TestMappingSetApproved(t *testing.T) {
	id := uuid.New()
	set := NewMappingSet()
	set.Add(&MappingEntry{UncleanValue: "a", Status: MappingApproved, ChosenCanonicalID: &id})
	set.Add(&MappingEntry{UncleanValue: "b", Status: MappingPending})
	set.Add(&MappingEntry{UncleanValue: "c", Status: MappingApproved, ChosenCanonicalID: &id})
	set.Add(&MappingEntry{UncleanValue: "d", Status: MappingRejected})

	approved := set.Approved()
	require.Len(t, approved, 2)
	assert.Equal(t, "a", approved[0].UncleanValue)
	assert.Equal(t, "c", approved[1].UncleanValue)
}

func TestMappingSetSummary(t *testing.T) {
	id := uuid.New()
	set := NewMappingSet()
	set.Add(&MappingEntry{UncleanValue: "a", Status: MappingApproved, ChosenCanonicalID: &id, AutoSelected: true})
	set.Add(&MappingEntry{UncleanValue: "b", Status: MappingApproved, ChosenCanonicalID: &id, UserOverridden: true})
	set.Add(&MappingEntry{UncleanValue: "c", Status: MappingPending})
	set.Add(&MappingEntry{UncleanValue: "d", Status: MappingRejected})

	sum := set.Summary()
	assert.Equal(t, 2, sum.Approved)
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 1, sum.AutoSelected)
	assert.Equal(t, 1, sum.UserOverridden)
}
