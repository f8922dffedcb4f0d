package model

import (
	"math/big"
	"strings"
)

// AllowList is the policy snapshot for a single vault, read fresh per
// trade. MaxAllocation is the ceiling for the traded output token; nil
// when the vault does not expose one.
type AllowList struct {
	Vault         string
	Tokens        []string
	MaxAllocation *big.Int
}

// Contains reports case-insensitive membership of a token identifier.
func (a AllowList) Contains(token string) bool {
	for _, candidate := range a.Tokens {
		if strings.EqualFold(candidate, token) {
			return true
		}
	}
	return false
}
