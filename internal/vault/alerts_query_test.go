package vault

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type fakeRegistryCaller struct {
	t     *testing.T
	count uint64
	err   error
}

func (f *fakeRegistryCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.t.Helper()
	if f.err != nil {
		return nil, f.err
	}

	parsed, err := AlertRegistryABI()
	if err != nil {
		f.t.Fatalf("parse registry abi: %v", err)
	}

	switch {
	case bytes.Equal(msg.Data[:4], parsed.Methods["alertsCount"].ID):
		return parsed.Methods["alertsCount"].Outputs.Pack(new(big.Int).SetUint64(f.count))
	case bytes.Equal(msg.Data[:4], parsed.Methods["getAlert"].ID):
		args, err := parsed.Methods["getAlert"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			f.t.Fatalf("unpack getAlert args: %v", err)
		}
		id := args[0].(*big.Int).Uint64()
		if id >= f.count {
			return nil, fmt.Errorf("execution reverted: id out of range")
		}
		return parsed.Methods["getAlert"].Outputs.Pack(
			common.HexToAddress("0x1000000000000000000000000000000000000001"),
			common.HexToAddress("0x2000000000000000000000000000000000000002"),
			fmt.Sprintf("Unauthorized token used: 0xB (%d)", id),
			new(big.Int).SetUint64(1_700_000_000+id),
		)
	default:
		return nil, fmt.Errorf("unexpected call %x", msg.Data[:4])
	}
}

func TestFetchSavedAlertCount(t *testing.T) {
	caller := &fakeRegistryCaller{t: t, count: 5}

	count, err := FetchSavedAlertCount(context.Background(), caller, registryAddr)
	if err != nil {
		t.Fatalf("fetch count: %v", err)
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestFetchSavedAlertsNewestFirst(t *testing.T) {
	caller := &fakeRegistryCaller{t: t, count: 3}

	alerts, err := FetchSavedAlerts(context.Background(), caller, registryAddr, 2)
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	if alerts[0].ID != 2 || alerts[1].ID != 1 {
		t.Fatalf("order = [%d %d], want newest first [2 1]", alerts[0].ID, alerts[1].ID)
	}

	first := alerts[0]
	if first.Vault != "0x1000000000000000000000000000000000000001" {
		t.Fatalf("vault = %s", first.Vault)
	}
	if first.Reason != "Unauthorized token used: 0xB (2)" {
		t.Fatalf("reason = %q", first.Reason)
	}
	if first.Timestamp != 1_700_000_002 {
		t.Fatalf("timestamp = %d", first.Timestamp)
	}
}

func TestFetchSavedAlertsLimitBeyondCount(t *testing.T) {
	caller := &fakeRegistryCaller{t: t, count: 2}

	alerts, err := FetchSavedAlerts(context.Background(), caller, registryAddr, 20)
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want all 2", len(alerts))
	}
}

func TestFetchSavedAlertsEmptyRegistry(t *testing.T) {
	caller := &fakeRegistryCaller{t: t, count: 0}

	alerts, err := FetchSavedAlerts(context.Background(), caller, registryAddr, 10)
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if alerts != nil {
		t.Fatalf("got %v, want nil for an empty registry", alerts)
	}
}

func TestFetchSavedAlertsPropagatesCallFailure(t *testing.T) {
	caller := &fakeRegistryCaller{t: t, err: fmt.Errorf("connection refused")}

	if _, err := FetchSavedAlerts(context.Background(), caller, registryAddr, 10); err == nil {
		t.Fatalf("expected transport error to surface")
	}
}
