package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SavedAlert is an alert as recorded by the registry contract.
type SavedAlert struct {
	ID        uint64 `json:"id"`
	Vault     string `json:"vault"`
	Manager   string `json:"manager"`
	Reason    string `json:"reason"`
	Timestamp uint64 `json:"timestamp"`
}

// FetchSavedAlertCount reads alertsCount() from the registry contract.
func FetchSavedAlertCount(ctx context.Context, chainClient ContractCaller, registry common.Address) (uint64, error) {
	parsed, err := AlertRegistryABI()
	if err != nil {
		return 0, fmt.Errorf("parse registry abi: %w", err)
	}
	values, err := callMethod(ctx, chainClient, registry, parsed, "alertsCount")
	if err != nil {
		return 0, err
	}
	count, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("alerts count: %w", err)
	}
	return count.Uint64(), nil
}

// FetchSavedAlerts reads up to limit most recent alerts from the registry
// contract, newest first. The chain is the source of truth for alert
// history; the running process only mirrors it in memory.
func FetchSavedAlerts(ctx context.Context, chainClient ContractCaller, registry common.Address, limit int) ([]SavedAlert, error) {
	count, err := FetchSavedAlertCount(ctx, chainClient, registry)
	if err != nil {
		return nil, err
	}
	if count == 0 || limit <= 0 {
		return nil, nil
	}

	parsed, err := AlertRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	alerts := make([]SavedAlert, 0, limit)
	for id := count; id > 0 && len(alerts) < limit; id-- {
		idx := id - 1
		values, err := callMethod(ctx, chainClient, registry, parsed, "getAlert", newBig(idx))
		if err != nil {
			return nil, fmt.Errorf("alert %d: %w", idx, err)
		}
		if len(values) != 4 {
			return nil, fmt.Errorf("alert %d: unexpected result arity %d", idx, len(values))
		}
		vaultAddr, err := asAddress(values[0])
		if err != nil {
			return nil, fmt.Errorf("alert %d vault: %w", idx, err)
		}
		manager, err := asAddress(values[1])
		if err != nil {
			return nil, fmt.Errorf("alert %d manager: %w", idx, err)
		}
		reason, ok := values[2].(string)
		if !ok {
			return nil, fmt.Errorf("alert %d reason: unsupported type %T", idx, values[2])
		}
		ts, err := asBigInt(values[3])
		if err != nil {
			return nil, fmt.Errorf("alert %d timestamp: %w", idx, err)
		}

		alerts = append(alerts, SavedAlert{
			ID:        idx,
			Vault:     vaultAddr.Hex(),
			Manager:   manager.Hex(),
			Reason:    reason,
			Timestamp: ts.Uint64(),
		})
	}

	return alerts, nil
}
