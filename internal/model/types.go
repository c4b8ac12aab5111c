package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectType distinguishes canonical registry projects from projects linked
// into a round profile.
type ProjectType string

const (
	ProjectTypeCanonical ProjectType = "canonical"
	ProjectTypeLinked    ProjectType = "linked"
)

// Project is a registry project.
type Project struct {
	ChainID          int64       `json:"chainId"`
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	ProjectNumber    *int64      `json:"projectNumber,omitempty"`
	RegistryAddress  string      `json:"registryAddress"`
	MetadataCID      string      `json:"metadataCid,omitempty"`
	Metadata         Object      `json:"metadata,omitempty"`
	CreatedByAddress string      `json:"createdByAddress"`
	CreatedAtBlock   int64       `json:"createdAtBlock"`
	UpdatedAtBlock   int64       `json:"updatedAtBlock"`
	Tags             []string    `json:"tags"`
	ProjectType      ProjectType `json:"projectType"`
}

// ProjectUpdate holds the mutable project fields. Nil fields are left as-is.
type ProjectUpdate struct {
	Name           *string      `json:"name,omitempty"`
	MetadataCID    *string      `json:"metadataCid,omitempty"`
	Metadata       Object       `json:"metadata,omitempty"`
	UpdatedAtBlock *int64       `json:"updatedAtBlock,omitempty"`
	ProjectType    *ProjectType `json:"projectType,omitempty"`
}

// ProjectRole grants an address a role on a project.
type ProjectRole struct {
	ChainID        int64  `json:"chainId"`
	ProjectID      string `json:"projectId"`
	Address        string `json:"address"`
	Role           string `json:"role"`
	CreatedAtBlock int64  `json:"createdAtBlock"`
}

// PendingProjectRole is a role grant observed before its project exists.
type PendingProjectRole struct {
	ID             int64  `json:"id,omitempty"`
	ChainID        int64  `json:"chainId"`
	Role           string `json:"role"`
	Address        string `json:"address"`
	CreatedAtBlock int64  `json:"createdAtBlock"`
}

// Round is a persisted funding round. MatchTokenAddress is immutable once
// the round is inserted; RoundUpdate deliberately has no field for it.
type Round struct {
	ChainID                 int64           `json:"chainId"`
	ID                      string          `json:"id"`
	MatchTokenAddress       string          `json:"matchTokenAddress"`
	MatchAmount             Amount          `json:"matchAmount"`
	MatchAmountInUSD        decimal.Decimal `json:"matchAmountInUsd"`
	ApplicationMetadataCID  string          `json:"applicationMetadataCid,omitempty"`
	ApplicationMetadata     Object          `json:"applicationMetadata,omitempty"`
	RoundMetadataCID        string          `json:"roundMetadataCid,omitempty"`
	RoundMetadata           Object          `json:"roundMetadata,omitempty"`
	ProjectID               string          `json:"projectId"`
	StrategyName            string          `json:"strategyName,omitempty"`
	CreatedByAddress        string          `json:"createdByAddress"`
	CreatedAtBlock          int64           `json:"createdAtBlock"`
	UpdatedAtBlock          int64           `json:"updatedAtBlock"`
	TotalAmountDonatedInUSD decimal.Decimal `json:"totalAmountDonatedInUsd"`
	TotalDonationsCount     int64           `json:"totalDonationsCount"`
	UniqueDonorsCount       int64           `json:"uniqueDonorsCount"`
	Tags                    []string        `json:"tags"`
}

// RoundUpdate holds the mutable round fields. Nil fields are left as-is.
type RoundUpdate struct {
	MatchAmount            *Amount          `json:"matchAmount,omitempty"`
	MatchAmountInUSD       *decimal.Decimal `json:"matchAmountInUsd,omitempty"`
	ApplicationMetadataCID *string          `json:"applicationMetadataCid,omitempty"`
	ApplicationMetadata    Object           `json:"applicationMetadata,omitempty"`
	RoundMetadataCID       *string          `json:"roundMetadataCid,omitempty"`
	RoundMetadata          Object           `json:"roundMetadata,omitempty"`
	UpdatedAtBlock         *int64           `json:"updatedAtBlock,omitempty"`
}

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
	ApplicationCanceled ApplicationStatus = "CANCELLED"
	ApplicationInReview ApplicationStatus = "IN_REVIEW"
)

// StatusSnapshot records one status transition. UpdatedAtBlock is an Amount
// because some chains report block numbers beyond 2^53.
type StatusSnapshot struct {
	Status         ApplicationStatus `json:"status"`
	UpdatedAtBlock Amount            `json:"updatedAtBlock"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Application is a project's application to a round.
type Application struct {
	ChainID                 int64             `json:"chainId"`
	RoundID                 string            `json:"roundId"`
	ID                      string            `json:"id"`
	ProjectID               string            `json:"projectId"`
	Status                  ApplicationStatus `json:"status"`
	StatusSnapshots         []StatusSnapshot  `json:"statusSnapshots"`
	StatusUpdatedAtBlock    int64             `json:"statusUpdatedAtBlock"`
	MetadataCID             string            `json:"metadataCid,omitempty"`
	Metadata                Object            `json:"metadata,omitempty"`
	CreatedByAddress        string            `json:"createdByAddress"`
	CreatedAtBlock          int64             `json:"createdAtBlock"`
	TotalAmountDonatedInUSD decimal.Decimal   `json:"totalAmountDonatedInUsd"`
	TotalDonationsCount     int64             `json:"totalDonationsCount"`
	UniqueDonorsCount       int64             `json:"uniqueDonorsCount"`
	Tags                    []string          `json:"tags"`
}

// ApplicationUpdate holds the mutable application fields. A nil
// StatusSnapshots leaves the history untouched; a non-nil one replaces it.
type ApplicationUpdate struct {
	Status               *ApplicationStatus `json:"status,omitempty"`
	StatusSnapshots      []StatusSnapshot   `json:"statusSnapshots,omitempty"`
	StatusUpdatedAtBlock *int64             `json:"statusUpdatedAtBlock,omitempty"`
	MetadataCID          *string            `json:"metadataCid,omitempty"`
	Metadata             Object             `json:"metadata,omitempty"`
}

// Donation is one persisted donation fact.
type Donation struct {
	ID                      string          `json:"id"`
	ChainID                 int64           `json:"chainId"`
	RoundID                 string          `json:"roundId"`
	ApplicationID           string          `json:"applicationId"`
	DonorAddress            string          `json:"donorAddress"`
	RecipientAddress        string          `json:"recipientAddress"`
	ProjectID               string          `json:"projectId"`
	TransactionHash         string          `json:"transactionHash"`
	BlockNumber             int64           `json:"blockNumber"`
	TokenAddress            string          `json:"tokenAddress"`
	Amount                  Amount          `json:"amount"`
	AmountInUSD             decimal.Decimal `json:"amountInUsd"`
	AmountInRoundMatchToken Amount          `json:"amountInRoundMatchToken"`
	Timestamp               time.Time       `json:"timestamp"`
}

// Price is a USD quote for a token at a block.
type Price struct {
	ChainID      int64           `json:"chainId"`
	TokenAddress string          `json:"tokenAddress"`
	PriceInUSD   decimal.Decimal `json:"priceInUsd"`
	Timestamp    time.Time       `json:"timestamp"`
	BlockNumber  int64           `json:"blockNumber"`
}
