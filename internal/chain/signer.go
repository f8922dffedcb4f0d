package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the single signing identity used for every outbound write
// transaction. It caches the account nonce so that sequential commits get
// strictly increasing sequence numbers without a round trip per
// submission. The committer serializes all access; the mutex only guards
// against accidental concurrent use.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu        sync.Mutex
	nonce     uint64
	nonceInit bool
}

// NewSigner parses a hex-encoded private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the account address of the signing identity.
func (s *Signer) Address() common.Address {
	return s.address
}

// NonceSource reads the pending account nonce from the network.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NextNonce returns the next transaction nonce. The first call queries
// the pending nonce from the node; later calls increment the cached value.
func (s *Signer) NextNonce(ctx context.Context, client NonceSource) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.nonceInit {
		nonce, err := client.PendingNonceAt(ctx, s.address)
		if err != nil {
			return 0, fmt.Errorf("pending nonce: %w", err)
		}
		s.nonce = nonce
		s.nonceInit = true
	}

	nonce := s.nonce
	s.nonce++
	return nonce, nil
}

// InvalidateNonce drops the cached nonce so the next submission re-queries
// the node. Called after a failed send, where the local counter may have
// drifted from the network's view.
func (s *Signer) InvalidateNonce() {
	s.mu.Lock()
	s.nonceInit = false
	s.mu.Unlock()
}

// SignTx signs a transaction for the given chain.
func (s *Signer) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
