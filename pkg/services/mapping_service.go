package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reachcrm-inc/statecore-engine/pkg/apperrors"
	"github.com/reachcrm-inc/statecore-engine/pkg/config"
	"github.com/reachcrm-inc/statecore-engine/pkg/match"
	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/repositories"
)

// MappingService builds and edits the in-session mapping set.
type MappingService interface {
	// BuildProposal feeds every distinct unclean value through the matcher
	// and applies the auto-selection policy. Values that already normalize
	// to a canonical name are skipped.
	BuildProposal(ctx context.Context, sess *ReconciliationSession, values []repositories.DistinctValue) error

	// Approve chooses a canonical state for an unclean value. The choice
	// counts as a user override when it differs from what auto-selection
	// picked (or would have picked).
	Approve(sess *ReconciliationSession, uncleanValue string, canonicalID uuid.UUID) error

	// Reject marks an unclean value as not mappable in this session.
	Reject(sess *ReconciliationSession, uncleanValue string) error

	// Reset reapplies the auto-selection policy to an entry.
	Reset(sess *ReconciliationSession, uncleanValue string) error

	// Summary counts the set's entries by disposition.
	Summary(sess *ReconciliationSession) models.MappingSummary
}

type mappingService struct {
	cfg    config.ReconcilerConfig
	logger *zap.Logger
}

// NewMappingService creates a new MappingService.
func NewMappingService(cfg config.ReconcilerConfig, logger *zap.Logger) MappingService {
	return &mappingService{
		cfg:    cfg,
		logger: logger.Named("mapping-service"),
	}
}

var _ MappingService = (*mappingService)(nil)

func (s *mappingService) BuildProposal(ctx context.Context, sess *ReconciliationSession, values []repositories.DistinctValue) error {
	matcher := match.NewMatcher(sess.Catalogue, s.cfg.MatchMinScore)

	// Matching is CPU-only but a large CRM can hold thousands of distinct
	// values; check for cancellation between chunks. Entries are built
	// outside the session lock and installed in one step.
	entries := make([]*models.MappingEntry, 0, len(values))
	for start := 0; start < len(values); start += s.cfg.ChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + s.cfg.ChunkSize
		if end > len(values) {
			end = len(values)
		}
		for _, v := range values[start:end] {
			if st, ok := sess.Catalogue.ByName(v.Value); ok && st.Name == v.Value {
				// Already the canonical spelling; nothing to reconcile.
				continue
			}

			entry := &models.MappingEntry{
				UncleanValue:  v.Value,
				Occurrences:   v.Count,
				TopCandidates: matcher.Match(v.Value),
			}
			s.applyAutoSelection(entry)
			if err := entry.Validate(s.cfg.AutoThreshold); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
	}

	if err := sess.propose(entries); err != nil {
		return err
	}

	view := sess.Snapshot()
	s.logger.Info("Built mapping proposal",
		zap.String("session_id", sess.ID.String()),
		zap.Int("entries", len(view.Entries)),
		zap.Int("auto_selected", view.Summary.AutoSelected),
		zap.Int("pending", view.Summary.Pending))
	return nil
}

// applyAutoSelection approves an entry without user action when the top
// candidate clears the threshold and leads the runner-up by the configured
// margin. A tie at the top never auto-selects.
func (s *mappingService) applyAutoSelection(entry *models.MappingEntry) {
	entry.ChosenCanonicalID = nil
	entry.AutoCanonicalID = nil
	entry.AutoSelected = false
	entry.UserOverridden = false
	entry.Status = models.MappingPending
	entry.Confidence = 0

	if len(entry.TopCandidates) == 0 {
		return
	}

	top := entry.TopCandidates[0]
	entry.Confidence = top.Score
	if top.Score < s.cfg.AutoThreshold {
		return
	}
	if len(entry.TopCandidates) > 1 {
		second := entry.TopCandidates[1]
		if second.Score == top.Score {
			return
		}
		if top.Score-second.Score < s.cfg.AutoMargin {
			return
		}
	}

	id := top.CanonicalID
	entry.ChosenCanonicalID = &id
	entry.AutoCanonicalID = &id
	entry.AutoSelected = true
	entry.Status = models.MappingApproved
}

func (s *mappingService) Approve(sess *ReconciliationSession, uncleanValue string, canonicalID uuid.UUID) error {
	return sess.edit(func(set *models.MappingSet) error {
		if _, ok := sess.Catalogue.ByID(canonicalID); !ok {
			return fmt.Errorf("%w: %s", apperrors.ErrUnknownCanonicalState, canonicalID)
		}

		entry, ok := set.Get(uncleanValue)
		if !ok {
			return fmt.Errorf("%w: no mapping entry for %q", apperrors.ErrNotFound, uncleanValue)
		}

		id := canonicalID
		entry.ChosenCanonicalID = &id
		entry.AutoSelected = false
		entry.UserOverridden = s.isOverride(entry, canonicalID)
		entry.Status = models.MappingApproved
		entry.Confidence = confidenceFor(entry, canonicalID)

		return entry.Validate(s.cfg.AutoThreshold)
	})
}

// isOverride reports whether a manual approval deviates from the system's
// proposal: either a different state than the auto-selection, or, for
// entries that never auto-selected, anything but the top candidate
// (including states entered manually, outside the candidate list).
func (s *mappingService) isOverride(entry *models.MappingEntry, canonicalID uuid.UUID) bool {
	if entry.AutoCanonicalID != nil {
		return *entry.AutoCanonicalID != canonicalID
	}
	if len(entry.TopCandidates) == 0 {
		return true
	}
	return entry.TopCandidates[0].CanonicalID != canonicalID
}

// confidenceFor returns the candidate score backing a choice, or zero for a
// manual entry outside the candidate list.
func confidenceFor(entry *models.MappingEntry, canonicalID uuid.UUID) int {
	for _, c := range entry.TopCandidates {
		if c.CanonicalID == canonicalID {
			return c.Score
		}
	}
	return 0
}

func (s *mappingService) Reject(sess *ReconciliationSession, uncleanValue string) error {
	return sess.edit(func(set *models.MappingSet) error {
		entry, ok := set.Get(uncleanValue)
		if !ok {
			return fmt.Errorf("%w: no mapping entry for %q", apperrors.ErrNotFound, uncleanValue)
		}

		entry.ChosenCanonicalID = nil
		entry.AutoSelected = false
		entry.UserOverridden = false
		entry.Status = models.MappingRejected
		return nil
	})
}

func (s *mappingService) Reset(sess *ReconciliationSession, uncleanValue string) error {
	return sess.edit(func(set *models.MappingSet) error {
		entry, ok := set.Get(uncleanValue)
		if !ok {
			return fmt.Errorf("%w: no mapping entry for %q", apperrors.ErrNotFound, uncleanValue)
		}

		s.applyAutoSelection(entry)
		return entry.Validate(s.cfg.AutoThreshold)
	})
}

func (s *mappingService) Summary(sess *ReconciliationSession) models.MappingSummary {
	return sess.Snapshot().Summary
}
