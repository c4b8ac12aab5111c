package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainChange prefixes change identity hashes. The version suffix allows a
// future algorithm migration without colliding with existing ids.
const DomainChange = "grants-indexer/change/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChangeID computes the content-addressed id of a change applied at seq.
// The same change replayed at the same seq always yields the same id, which is
// what makes re-applying a change log a no-op.
func ChangeID(seq int64, change DataChange) (string, error) {
	payload, err := MarshalChange(change)
	if err != nil {
		return "", fmt.Errorf("change id: %w", err)
	}
	tree, err := ParseValue(payload)
	if err != nil {
		return "", fmt.Errorf("change id: %w", err)
	}

	canonical, err := MarshalCanonical(Object{
		"seq":    Int(seq),
		"change": tree,
	})
	if err != nil {
		return "", fmt.Errorf("change id: %w", err)
	}
	return hashWithDomain(DomainChange, canonical), nil
}
