// Package match proposes ranked canonical-state candidates for unclean
// values. Matching is pure: for a fixed catalogue, the same input always
// yields the same ranked list.
package match

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/reachcrm-inc/statecore-engine/pkg/models"
	"github.com/reachcrm-inc/statecore-engine/pkg/normalize"
)

// Candidate scores by reason.
const (
	scoreExact       = 100
	scoreAlias       = 95
	scorePrefixBase  = 85
	scorePrefixFloor = 60
	maxCandidates    = 5
)

// Matcher scores unclean values against a catalogue.
type Matcher struct {
	catalogue *models.Catalogue
	minScore  int
}

// NewMatcher creates a matcher over the given catalogue. Fuzzy candidates
// scoring below minScore are discarded.
func NewMatcher(catalogue *models.Catalogue, minScore int) *Matcher {
	return &Matcher{catalogue: catalogue, minScore: minScore}
}

// Match returns at most five candidates for a raw unclean value, sorted by
// descending score; equal scores order by canonical name ascending. Each
// canonical state appears once, with its best score.
func (m *Matcher) Match(raw string) []models.Candidate {
	q := normalize.Normalize(raw)
	if q == "" {
		return nil
	}

	best := make(map[uuid.UUID]models.Candidate)
	// Rules run in priority order; a later rule only displaces an earlier
	// candidate for the same state when it scores strictly higher.
	consider := func(c models.Candidate) {
		if prev, ok := best[c.CanonicalID]; ok && prev.Score >= c.Score {
			return
		}
		best[c.CanonicalID] = c
	}

	if st, ok := m.catalogue.ByName(q); ok {
		consider(models.Candidate{
			CanonicalID:   st.ID,
			CanonicalName: st.Name,
			Score:         scoreExact,
			Reason:        models.ReasonExact,
		})
	}

	if id, ok := m.aliasTarget(q); ok {
		if st, found := m.catalogue.ByID(id); found {
			consider(models.Candidate{
				CanonicalID:   st.ID,
				CanonicalName: st.Name,
				Score:         scoreAlias,
				Reason:        models.ReasonAlias,
			})
		}
	}

	qRunes := []rune(q)
	for _, entry := range m.catalogue.Entries() {
		name := entry.NormalizedName
		if len(qRunes) >= 3 && strings.HasPrefix(name, q) && name != q {
			lengthDiff := len([]rune(name)) - len(qRunes)
			score := scorePrefixBase - 2*lengthDiff
			if score < scorePrefixFloor {
				score = scorePrefixFloor
			}
			consider(models.Candidate{
				CanonicalID:   entry.State.ID,
				CanonicalName: entry.State.Name,
				Score:         score,
				Reason:        models.ReasonPrefix,
			})
		}

		if score, ok := m.fuzzyScore(qRunes, name); ok {
			consider(models.Candidate{
				CanonicalID:   entry.State.ID,
				CanonicalName: entry.State.Name,
				Score:         score,
				Reason:        models.ReasonFuzzy,
			})
		}
	}

	candidates := make([]models.Candidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CanonicalName < candidates[j].CanonicalName
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

// aliasTarget resolves q through the catalogue alias index, falling back to
// the fixed abbreviation table for well-known short forms.
func (m *Matcher) aliasTarget(q string) (uuid.UUID, bool) {
	if id, ok := m.catalogue.AliasTarget(q); ok {
		return id, true
	}
	if long, ok := normalize.ExpandAbbreviation(q); ok {
		if st, found := m.catalogue.ByName(long); found {
			return st.ID, true
		}
	}
	return uuid.Nil, false
}

// fuzzyScore maps the Damerau-Levenshtein distance between q and a
// normalized canonical name onto [0,100]. Candidates below the configured
// minimum are dropped.
func (m *Matcher) fuzzyScore(q []rune, name string) (int, bool) {
	nameRunes := []rune(name)
	maxLen := len(q)
	if len(nameRunes) > maxLen {
		maxLen = len(nameRunes)
	}
	if maxLen == 0 {
		return 0, false
	}
	d := osaDistance(q, nameRunes)
	score := int(math.Round(100 * (1 - float64(d)/float64(maxLen))))
	if score < m.minScore {
		return 0, false
	}
	return score, true
}
