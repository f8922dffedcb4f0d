package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeNonceSource struct {
	nonce uint64
	calls int
}

func (f *fakeNonceSource) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.calls++
	return f.nonce, nil
}

func TestNewSignerParsesKey(t *testing.T) {
	for _, input := range []string{testKeyHex, "0x" + testKeyHex, "  " + testKeyHex + "  "} {
		signer, err := NewSigner(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if signer.Address() == (common.Address{}) {
			t.Fatalf("zero address derived from %q", input)
		}
	}

	if _, err := NewSigner(""); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NewSigner("0xzz"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestNextNonceCachesAndIncrements(t *testing.T) {
	source := &fakeNonceSource{nonce: 10}
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	for i := 0; i < 3; i++ {
		nonce, err := signer.NextNonce(context.Background(), source)
		if err != nil {
			t.Fatalf("next nonce %d: %v", i, err)
		}
		if nonce != uint64(10+i) {
			t.Fatalf("nonce = %d, want %d", nonce, 10+i)
		}
	}
	if source.calls != 1 {
		t.Fatalf("network queried %d times, want once", source.calls)
	}

	signer.InvalidateNonce()
	source.nonce = 25
	nonce, err := signer.NextNonce(context.Background(), source)
	if err != nil {
		t.Fatalf("next nonce after invalidate: %v", err)
	}
	if nonce != 25 {
		t.Fatalf("nonce = %d, want fresh network value 25", nonce)
	}
	if source.calls != 2 {
		t.Fatalf("network queried %d times, want re-query after invalidate", source.calls)
	}
}

func TestSignTxRecoverableSender(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	chainID := big.NewInt(31337)
	to := common.HexToAddress("0x9000000000000000000000000000000000000009")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		To:       &to,
		Gas:      21_000,
		GasPrice: big.NewInt(1),
	})

	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != signer.Address() {
		t.Fatalf("sender = %s, want %s", sender.Hex(), signer.Address().Hex())
	}
}
