package calculator

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shuoer86/grants-stack-indexer/internal/model"
)

// Eligibility is the sybil-defense policy of a run.
type Eligibility struct {
	SybilDefense bool
	// Threshold, when set, replaces the evidence pass flag: a contributor
	// must score strictly above it.
	Threshold *decimal.Decimal
}

// Eligible decides whether a contribution counts toward matching.
//
// An override with any coefficient but "1" excludes it. Otherwise, with
// sybil defense on, the contributor's evidence must exceed the threshold if
// one is set, or pass if not; absent evidence never qualifies. With sybil
// defense off every contribution counts.
func (e Eligibility) Eligible(c model.ContributionRecord, evidence model.Evidence, overrides Overrides) bool {
	if overrides.Excludes(c.ID) {
		return false
	}
	if !e.SybilDefense {
		return true
	}
	if e.Threshold != nil {
		score, ok := evidence.Raw()
		return ok && score.GreaterThan(*e.Threshold)
	}
	return evidence.Passed()
}

// ScoreIndex finds a contributor's evidence by address, case-insensitively.
type ScoreIndex map[string]model.Evidence

// NewScoreIndex indexes scores by normalized address. Later duplicates win.
func NewScoreIndex(scores []model.ReputationScore) ScoreIndex {
	idx := make(ScoreIndex, len(scores))
	for _, s := range scores {
		idx[addressKey(s.Address)] = s.Evidence
	}
	return idx
}

// Lookup returns the evidence of address, absent if unscored.
func (idx ScoreIndex) Lookup(address string) model.Evidence {
	if ev, ok := idx[addressKey(address)]; ok {
		return ev
	}
	return model.AbsentEvidence()
}

// FilterEligible keeps the eligible contributions and converts them to
// engine input, preserving order.
func FilterEligible(contributions []model.ContributionRecord, scores ScoreIndex, policy Eligibility, overrides Overrides) []Contribution {
	out := make([]Contribution, 0, len(contributions))
	for _, c := range contributions {
		if !policy.Eligible(c, scores.Lookup(c.Voter), overrides) {
			continue
		}
		out = append(out, Contribution{
			ID:          c.ID,
			Contributor: c.Voter,
			Recipient:   c.ApplicationID,
			Amount:      c.AmountRoundToken.Big(),
		})
	}
	return out
}

func addressKey(address string) string {
	if n, err := model.NormalizeAddress(address); err == nil {
		return n
	}
	return strings.ToLower(strings.TrimSpace(address))
}
