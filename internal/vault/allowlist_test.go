package vault

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testVaultAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testTokenOut  = common.HexToAddress("0xB00000000000000000000000000000000000000B")
)

type fakeVaultCaller struct {
	t             *testing.T
	tokens        []common.Address
	tokensErr     error
	allocation    *big.Int
	allocationErr error
}

func (f *fakeVaultCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.t.Helper()

	parsed, err := VaultABI()
	if err != nil {
		f.t.Fatalf("parse vault abi: %v", err)
	}

	switch {
	case bytes.Equal(msg.Data[:4], parsed.Methods["allowedTokens"].ID):
		if f.tokensErr != nil {
			return nil, f.tokensErr
		}
		return parsed.Methods["allowedTokens"].Outputs.Pack(f.tokens)
	case bytes.Equal(msg.Data[:4], parsed.Methods["maxAllocation"].ID):
		if f.allocationErr != nil {
			return nil, f.allocationErr
		}
		return parsed.Methods["maxAllocation"].Outputs.Pack(f.allocation)
	default:
		return nil, fmt.Errorf("unexpected call %x", msg.Data[:4])
	}
}

func observedFetcher(caller ContractCaller) (*AllowListFetcher, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewAllowListFetcher(caller, zap.New(core)), logs
}

func TestFetchReadsTokensAndCeiling(t *testing.T) {
	caller := &fakeVaultCaller{
		t:          t,
		tokens:     []common.Address{testTokenOut},
		allocation: big.NewInt(1_000),
	}
	fetcher, _ := observedFetcher(caller)

	list, err := fetcher.Fetch(context.Background(), testVaultAddr, testTokenOut)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if !list.Contains(testTokenOut.Hex()) {
		t.Fatalf("allow-list missing token: %v", list.Tokens)
	}
	if list.MaxAllocation == nil || list.MaxAllocation.Int64() != 1_000 {
		t.Fatalf("ceiling = %v, want 1000", list.MaxAllocation)
	}
}

func TestFetchZeroCeilingMeansNone(t *testing.T) {
	caller := &fakeVaultCaller{
		t:          t,
		tokens:     []common.Address{testTokenOut},
		allocation: big.NewInt(0),
	}
	fetcher, _ := observedFetcher(caller)

	list, err := fetcher.Fetch(context.Background(), testVaultAddr, testTokenOut)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if list.MaxAllocation != nil {
		t.Fatalf("ceiling = %v, want nil for zero", list.MaxAllocation)
	}
}

func TestFetchAllowedTokensFailureIsHard(t *testing.T) {
	caller := &fakeVaultCaller{t: t, tokensErr: fmt.Errorf("connection refused")}
	fetcher, _ := observedFetcher(caller)

	if _, err := fetcher.Fetch(context.Background(), testVaultAddr, testTokenOut); err == nil {
		t.Fatalf("expected a hard error when the allow-list is unreadable")
	}
}

func TestFetchCeilingRevertDegradesQuietly(t *testing.T) {
	caller := &fakeVaultCaller{
		t:             t,
		tokens:        []common.Address{testTokenOut},
		allocationErr: fmt.Errorf("execution reverted"),
	}
	fetcher, logs := observedFetcher(caller)

	list, err := fetcher.Fetch(context.Background(), testVaultAddr, testTokenOut)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if list.MaxAllocation != nil {
		t.Fatalf("ceiling = %v, want nil on revert", list.MaxAllocation)
	}

	if n := logs.FilterLevelExact(zap.WarnLevel).Len(); n != 0 {
		t.Fatalf("revert logged %d warnings, want none", n)
	}
	if logs.FilterMessage("vault exposes no allocation ceiling").Len() != 1 {
		t.Fatalf("missing debug entry for a ceilingless vault")
	}
}

func TestFetchCeilingTransportFailureWarns(t *testing.T) {
	caller := &fakeVaultCaller{
		t:             t,
		tokens:        []common.Address{testTokenOut},
		allocationErr: fmt.Errorf("read tcp: connection reset"),
	}
	fetcher, logs := observedFetcher(caller)

	list, err := fetcher.Fetch(context.Background(), testVaultAddr, testTokenOut)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if list.MaxAllocation != nil {
		t.Fatalf("ceiling = %v, want nil when the read fails", list.MaxAllocation)
	}

	entries := logs.FilterMessage("max allocation read failed, ceiling check skipped")
	if entries.Len() != 1 {
		t.Fatalf("transport failure produced %d warn entries, want 1", entries.Len())
	}
	if entries.All()[0].Level != zap.WarnLevel {
		t.Fatalf("transport failure logged at %s, want warn", entries.All()[0].Level)
	}
}
