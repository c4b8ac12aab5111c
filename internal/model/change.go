package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// ChangeKind names a DataChange variant on the wire and in the change log.
type ChangeKind string

const (
	KindInsertPendingProjectRole          ChangeKind = "InsertPendingProjectRole"
	KindDeletePendingProjectRoles         ChangeKind = "DeletePendingProjectRoles"
	KindInsertProject                     ChangeKind = "InsertProject"
	KindUpdateProject                     ChangeKind = "UpdateProject"
	KindInsertProjectRole                 ChangeKind = "InsertProjectRole"
	KindDeleteAllProjectRolesByRole       ChangeKind = "DeleteAllProjectRolesByRole"
	KindInsertRound                       ChangeKind = "InsertRound"
	KindUpdateRound                       ChangeKind = "UpdateRound"
	KindInsertApplication                 ChangeKind = "InsertApplication"
	KindUpdateApplication                 ChangeKind = "UpdateApplication"
	KindInsertDonation                    ChangeKind = "InsertDonation"
	KindNewDonations                      ChangeKind = "NewDonations"
	KindNewPrices                         ChangeKind = "NewPrices"
	KindIncrementRoundDonationStats       ChangeKind = "IncrementRoundDonationStats"
	KindIncrementApplicationDonationStats ChangeKind = "IncrementApplicationDonationStats"
)

// AllChangeKinds lists every variant in declaration order.
var AllChangeKinds = []ChangeKind{
	KindInsertPendingProjectRole,
	KindDeletePendingProjectRoles,
	KindInsertProject,
	KindUpdateProject,
	KindInsertProjectRole,
	KindDeleteAllProjectRolesByRole,
	KindInsertRound,
	KindUpdateRound,
	KindInsertApplication,
	KindUpdateApplication,
	KindInsertDonation,
	KindNewDonations,
	KindNewPrices,
	KindIncrementRoundDonationStats,
	KindIncrementApplicationDonationStats,
}

// DataChange is a single mutation of persisted state. The interface is sealed:
// only the variants in this file implement it, so a type switch over them is
// the complete set of kinds.
type DataChange interface {
	Kind() ChangeKind
	isChange()
}

type InsertPendingProjectRole struct {
	PendingProjectRole PendingProjectRole `json:"pendingProjectRole"`
}

type DeletePendingProjectRoles struct {
	IDs []int64 `json:"ids"`
}

type InsertProject struct {
	Project Project `json:"project"`
}

type UpdateProject struct {
	ChainID   int64         `json:"chainId"`
	ProjectID string        `json:"projectId"`
	Project   ProjectUpdate `json:"project"`
}

type InsertProjectRole struct {
	ProjectRole ProjectRole `json:"projectRole"`
}

// DeleteAllProjectRolesByRole removes every grant of Role on a project, or
// only the grant held by Address when it is set.
type DeleteAllProjectRolesByRole struct {
	ChainID   int64   `json:"chainId"`
	ProjectID string  `json:"projectId"`
	Role      string  `json:"role"`
	Address   *string `json:"address,omitempty"`
}

type InsertRound struct {
	Round Round `json:"round"`
}

type UpdateRound struct {
	ChainID int64       `json:"chainId"`
	RoundID string      `json:"roundId"`
	Round   RoundUpdate `json:"round"`
}

type InsertApplication struct {
	Application Application `json:"application"`
}

type UpdateApplication struct {
	ChainID       int64             `json:"chainId"`
	RoundID       string            `json:"roundId"`
	ApplicationID string            `json:"applicationId"`
	Application   ApplicationUpdate `json:"application"`
}

// InsertDonation is buffered by the donation queue rather than written
// synchronously.
type InsertDonation struct {
	Donation Donation `json:"donation"`
}

type NewDonations struct {
	Donations []Donation `json:"donations"`
}

type NewPrices struct {
	Prices []Price `json:"prices"`
}

type IncrementRoundDonationStats struct {
	ChainID     int64           `json:"chainId"`
	RoundID     string          `json:"roundId"`
	AmountInUSD decimal.Decimal `json:"amountInUsd"`
}

type IncrementApplicationDonationStats struct {
	ChainID       int64           `json:"chainId"`
	RoundID       string          `json:"roundId"`
	ApplicationID string          `json:"applicationId"`
	AmountInUSD   decimal.Decimal `json:"amountInUsd"`
}

func (InsertPendingProjectRole) Kind() ChangeKind  { return KindInsertPendingProjectRole }
func (DeletePendingProjectRoles) Kind() ChangeKind { return KindDeletePendingProjectRoles }
func (InsertProject) Kind() ChangeKind             { return KindInsertProject }
func (UpdateProject) Kind() ChangeKind             { return KindUpdateProject }
func (InsertProjectRole) Kind() ChangeKind         { return KindInsertProjectRole }
func (DeleteAllProjectRolesByRole) Kind() ChangeKind {
	return KindDeleteAllProjectRolesByRole
}
func (InsertRound) Kind() ChangeKind       { return KindInsertRound }
func (UpdateRound) Kind() ChangeKind       { return KindUpdateRound }
func (InsertApplication) Kind() ChangeKind { return KindInsertApplication }
func (UpdateApplication) Kind() ChangeKind { return KindUpdateApplication }
func (InsertDonation) Kind() ChangeKind    { return KindInsertDonation }
func (NewDonations) Kind() ChangeKind      { return KindNewDonations }
func (NewPrices) Kind() ChangeKind         { return KindNewPrices }
func (IncrementRoundDonationStats) Kind() ChangeKind {
	return KindIncrementRoundDonationStats
}
func (IncrementApplicationDonationStats) Kind() ChangeKind {
	return KindIncrementApplicationDonationStats
}

func (InsertPendingProjectRole) isChange()          {}
func (DeletePendingProjectRoles) isChange()         {}
func (InsertProject) isChange()                     {}
func (UpdateProject) isChange()                     {}
func (InsertProjectRole) isChange()                 {}
func (DeleteAllProjectRolesByRole) isChange()       {}
func (InsertRound) isChange()                       {}
func (UpdateRound) isChange()                       {}
func (InsertApplication) isChange()                 {}
func (UpdateApplication) isChange()                 {}
func (InsertDonation) isChange()                    {}
func (NewDonations) isChange()                      {}
func (NewPrices) isChange()                         {}
func (IncrementRoundDonationStats) isChange()       {}
func (IncrementApplicationDonationStats) isChange() {}

// MarshalChange encodes a change as a JSON object tagged with "type".
func MarshalChange(c DataChange) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("marshal change: nil change")
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal change %s: %w", c.Kind(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("marshal change %s: %w", c.Kind(), err)
	}
	kind, _ := json.Marshal(string(c.Kind()))
	fields["type"] = kind

	return json.Marshal(fields)
}

// UnmarshalChange decodes a "type"-tagged JSON object into its variant.
// An unrecognized type yields *UnknownChangeKindError.
func UnmarshalChange(data []byte) (DataChange, error) {
	var head struct {
		Type ChangeKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal change: %w", err)
	}

	switch head.Type {
	case KindInsertPendingProjectRole:
		return decodeChange[InsertPendingProjectRole](data)
	case KindDeletePendingProjectRoles:
		return decodeChange[DeletePendingProjectRoles](data)
	case KindInsertProject:
		return decodeChange[InsertProject](data)
	case KindUpdateProject:
		return decodeChange[UpdateProject](data)
	case KindInsertProjectRole:
		return decodeChange[InsertProjectRole](data)
	case KindDeleteAllProjectRolesByRole:
		return decodeChange[DeleteAllProjectRolesByRole](data)
	case KindInsertRound:
		return decodeChange[InsertRound](data)
	case KindUpdateRound:
		return decodeChange[UpdateRound](data)
	case KindInsertApplication:
		return decodeChange[InsertApplication](data)
	case KindUpdateApplication:
		return decodeChange[UpdateApplication](data)
	case KindInsertDonation:
		return decodeChange[InsertDonation](data)
	case KindNewDonations:
		return decodeChange[NewDonations](data)
	case KindNewPrices:
		return decodeChange[NewPrices](data)
	case KindIncrementRoundDonationStats:
		return decodeChange[IncrementRoundDonationStats](data)
	case KindIncrementApplicationDonationStats:
		return decodeChange[IncrementApplicationDonationStats](data)
	default:
		return nil, &UnknownChangeKindError{Kind: string(head.Type)}
	}
}

func decodeChange[T DataChange](data []byte) (DataChange, error) {
	var c T
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal change %s: %w", c.Kind(), err)
	}
	return c, nil
}

// UnmarshalChanges decodes a JSON array of tagged changes. It fails on the
// first element that does not decode.
func UnmarshalChanges(data []byte) ([]DataChange, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal changes: %w", err)
	}
	changes := make([]DataChange, 0, len(raw))
	for i, r := range raw {
		c, err := UnmarshalChange(r)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}
