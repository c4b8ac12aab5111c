package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates an EVM address and returns it lower-cased with a
// 0x prefix. Addresses are compared and stored in this form everywhere.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// SameAddress reports whether a and b name the same account, ignoring case
// and checksum differences. Invalid addresses never match.
func SameAddress(a, b string) bool {
	na, err := NormalizeAddress(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeAddress(b)
	if err != nil {
		return false
	}
	return na == nb
}
