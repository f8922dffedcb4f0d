package policy

import (
	"fmt"
	"math/big"

	"vaultwatch/internal/model"
)

// Check is one independent policy predicate over a trade and its vault's
// live allow-list. A nil result means the check passed.
type Check func(ev model.TradeEvent, list model.AllowList) *model.Violation

// UnauthorizedToken flags trades whose output token is not a
// case-insensitive member of the allow-list.
func UnauthorizedToken(ev model.TradeEvent, list model.AllowList) *model.Violation {
	if list.Contains(ev.TokenOut) {
		return nil
	}
	return &model.Violation{Reason: fmt.Sprintf("Unauthorized token used: %s", ev.TokenOut)}
}

// AllocationCeiling flags trades whose amount exceeds the vault's
// allocation ceiling for the output token. Vaults without a ceiling pass.
func AllocationCeiling(ev model.TradeEvent, list model.AllowList) *model.Violation {
	if list.MaxAllocation == nil {
		return nil
	}
	amount, ok := new(big.Int).SetString(ev.Amount, 10)
	if !ok {
		return &model.Violation{Reason: fmt.Sprintf("Unreadable trade amount: %s", ev.Amount)}
	}
	if amount.Cmp(list.MaxAllocation) <= 0 {
		return nil
	}
	return &model.Violation{
		Reason: fmt.Sprintf("Allocation ceiling exceeded: %s > %s", amount.String(), list.MaxAllocation.String()),
	}
}

// DefaultChecks are the checks applied when the caller supplies none.
func DefaultChecks() []Check {
	return []Check{UnauthorizedToken, AllocationCeiling}
}

// Evaluate runs every check against the trade and collects all raised
// violations, not just the first. Pure: no I/O, no retained state.
func Evaluate(ev model.TradeEvent, list model.AllowList, checks ...Check) model.Verdict {
	if len(checks) == 0 {
		checks = DefaultChecks()
	}

	var violations []model.Violation
	for _, check := range checks {
		if v := check(ev, list); v != nil {
			violations = append(violations, *v)
		}
	}

	return model.Verdict{
		Allowed:    len(violations) == 0,
		Violations: violations,
	}
}
