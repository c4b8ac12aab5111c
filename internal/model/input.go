package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// QuadraticFundingConfig is the matching configuration carried in a round's
// metadata. MatchingCapAmount is a percentage of the pool (0-100, up to two
// fractional digits). MinDonationThresholdAmount is a USD amount with six
// fractional digits.
type QuadraticFundingConfig struct {
	SybilDefense               bool            `json:"sybilDefense"`
	MatchingCap                bool            `json:"matchingCap"`
	MatchingCapAmount          decimal.Decimal `json:"matchingCapAmount"`
	MinDonationThreshold       bool            `json:"minDonationThreshold"`
	MinDonationThresholdAmount decimal.Decimal `json:"minDonationThresholdAmount"`
}

// CapPercent returns the matching cap rounded to two decimal places, and
// false when the cap is disabled.
func (c QuadraticFundingConfig) CapPercent() (decimal.Decimal, bool) {
	if !c.MatchingCap {
		return decimal.Zero, false
	}
	return c.MatchingCapAmount.Round(2), true
}

// MinimumUSD returns the per-donation USD threshold rounded to six decimal
// places, and false when no threshold applies.
func (c QuadraticFundingConfig) MinimumUSD() (decimal.Decimal, bool) {
	if !c.MinDonationThreshold {
		return decimal.Zero, false
	}
	return c.MinDonationThresholdAmount.Round(6), true
}

// RoundMetadata is the part of a round's metadata the calculator reads.
type RoundMetadata struct {
	QuadraticFundingConfig QuadraticFundingConfig `json:"quadraticFundingConfig"`
}

// RoundRecord is a round as supplied by an input source.
type RoundRecord struct {
	ID                 string        `json:"id"`
	MatchTokenAddress  string        `json:"matchTokenAddress"`
	MatchTokenDecimals *int          `json:"matchTokenDecimals,omitempty"`
	MatchAmount        Amount        `json:"matchAmount"`
	Metadata           RoundMetadata `json:"metadata"`
}

// Decimals returns the match token scale. ok is false when the record omits it.
func (r RoundRecord) Decimals() (decimals int, ok bool) {
	if r.MatchTokenDecimals == nil {
		return 0, false
	}
	return *r.MatchTokenDecimals, true
}

// ApplicationRecord is an application as supplied by an input source.
type ApplicationRecord struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	RoundID       string `json:"roundId"`
	PayoutAddress string `json:"payoutAddress"`
	ProjectTitle  string `json:"projectTitle"`
}

// ContributionRecord is a single vote as supplied by an input source.
type ContributionRecord struct {
	ID               string          `json:"id"`
	Voter            string          `json:"voter"`
	ApplicationID    string          `json:"applicationId"`
	AmountRoundToken Amount          `json:"amountRoundToken"`
	AmountUSD        decimal.Decimal `json:"amountUSD"`
}

// Evidence is the optional outcome of a reputation check. A score either has
// evidence (Present) or it does not; there is no partial state to probe.
type Evidence struct {
	present bool
	passed  bool
	raw     decimal.Decimal
	hasRaw  bool
}

// PresentEvidence builds evidence with a pass flag and a raw score.
func PresentEvidence(passed bool, raw decimal.Decimal) Evidence {
	return Evidence{present: true, passed: passed, raw: raw, hasRaw: true}
}

// AbsentEvidence is the evidence of a contributor who was never scored.
func AbsentEvidence() Evidence {
	return Evidence{}
}

// Present reports whether the contributor was scored at all.
func (e Evidence) Present() bool { return e.present }

// Passed is false for absent evidence.
func (e Evidence) Passed() bool { return e.present && e.passed }

// Raw returns the numeric score. ok is false when the evidence is absent or
// carried no parseable score.
func (e Evidence) Raw() (score decimal.Decimal, ok bool) {
	if !e.present || !e.hasRaw {
		return decimal.Zero, false
	}
	return e.raw, true
}

type evidenceWire struct {
	Success  bool            `json:"success"`
	RawScore json.RawMessage `json:"rawScore"`
}

// UnmarshalJSON accepts null (absent) or {success, rawScore}. rawScore may be
// a string or a number.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = AbsentEvidence()
		return nil
	}
	var w evidenceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode evidence: %w", err)
	}
	*e = Evidence{present: true, passed: w.Success}

	raw := strings.Trim(strings.TrimSpace(string(w.RawScore)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		// Unscorable evidence still carries its pass flag.
		return nil
	}
	e.raw = d
	e.hasRaw = true
	return nil
}

// MarshalJSON writes null for absent evidence.
func (e Evidence) MarshalJSON() ([]byte, error) {
	if !e.present {
		return []byte("null"), nil
	}
	w := struct {
		Success  bool    `json:"success"`
		RawScore *string `json:"rawScore,omitempty"`
	}{Success: e.passed}
	if e.hasRaw {
		s := e.raw.String()
		w.RawScore = &s
	}
	return json.Marshal(w)
}

// ReputationScore is a contributor's sybil-defense result.
type ReputationScore struct {
	Address  string   `json:"address"`
	Evidence Evidence `json:"evidence"`
}
