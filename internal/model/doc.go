// Package model holds the domain types shared by the matching engine and the
// persistence layer.
//
// Persisted state (projects, roles, rounds, applications, donations, prices)
// only ever changes through a DataChange. DataChange is a closed set of
// variants: every variant lives in change.go and a type switch over them is
// exhaustive.
//
// Token amounts are arbitrary-precision integers (Amount) and USD values are
// exact decimals. Nothing in this package uses binary floating point, so
// values survive JSON and storage round trips unchanged.
//
// Change ids are content-addressed: SHA-256 over the RFC 8785 canonical JSON
// of the change and its sequence number, with a domain separation prefix.
package model
