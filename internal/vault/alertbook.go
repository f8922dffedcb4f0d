package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vaultwatch/internal/chain"
)

const receiptPollInterval = 3 * time.Second

// Confirmation is the durable proof of a committed alert: the transaction
// reference, the confirming block, and the sequential id assigned by the
// registry contract.
type Confirmation struct {
	ID          uint64
	TxHash      string
	BlockNumber uint64
}

// TxBackend is the chain surface the alert book writes through. Satisfied
// by chain.Client.
type TxBackend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// AlertBook submits saveAlert transactions to the on-chain alert registry
// and waits for them to be mined. All submissions go through the single
// shared signing identity; callers must serialize Submit.
type AlertBook struct {
	address        common.Address
	chain          TxBackend
	signer         *chain.Signer
	chainID        *big.Int
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// NewAlertBook builds an AlertBook bound to the registry contract.
func NewAlertBook(backend TxBackend, signer *chain.Signer, address common.Address, chainID *big.Int, confirmTimeout time.Duration, logger *zap.Logger) *AlertBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}
	return &AlertBook{
		address:        address,
		chain:          backend,
		signer:         signer,
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		logger:         logger,
	}
}

// Submit sends one saveAlert transaction and blocks until it is mined or
// the confirmation timeout elapses. The cached nonce is invalidated on
// every failure path so the next attempt re-queries the network.
func (b *AlertBook) Submit(ctx context.Context, vaultAddr, manager common.Address, reason string, metadata []byte) (Confirmation, error) {
	parsed, err := AlertRegistryABI()
	if err != nil {
		return Confirmation{}, fmt.Errorf("parse registry abi: %w", err)
	}
	if metadata == nil {
		metadata = []byte{}
	}

	data, err := parsed.Pack("saveAlert", vaultAddr, manager, reason, metadata)
	if err != nil {
		return Confirmation{}, fmt.Errorf("pack saveAlert: %w", err)
	}

	from := b.signer.Address()
	msg := ethereum.CallMsg{From: from, To: &b.address, Data: data}

	gasLimit, err := b.chain.EstimateGas(ctx, msg)
	if err != nil {
		return Confirmation{}, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit += gasLimit / 5

	gasPrice, err := b.chain.SuggestGasPrice(ctx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("suggest gas price: %w", err)
	}

	nonce, err := b.signer.NextNonce(ctx, b.chain)
	if err != nil {
		return Confirmation{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &b.address,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := b.signer.SignTx(b.chainID, tx)
	if err != nil {
		b.signer.InvalidateNonce()
		return Confirmation{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := b.chain.SendTransaction(ctx, signed); err != nil {
		b.signer.InvalidateNonce()
		return Confirmation{}, fmt.Errorf("send transaction: %w", err)
	}

	b.logger.Info("alert transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("vault", vaultAddr.Hex()),
	)

	receipt, err := b.waitMined(ctx, signed.Hash())
	if err != nil {
		b.signer.InvalidateNonce()
		return Confirmation{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		b.signer.InvalidateNonce()
		return Confirmation{}, fmt.Errorf("saveAlert reverted in block %d", receipt.BlockNumber.Uint64())
	}

	conf := Confirmation{
		TxHash:      signed.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
	}

	id, ok := b.alertIDFromReceipt(parsed.Events["AlertSaved"].ID, receipt)
	if !ok {
		// Confirmed without a readable AlertSaved log; keep the commit,
		// the transaction reference is still the proof.
		b.logger.Warn("alert id missing from receipt", zap.String("tx_hash", conf.TxHash))
	}
	conf.ID = id

	return conf, nil
}

func (b *AlertBook) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.chain.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			b.logger.Warn("receipt poll failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("confirmation wait for %s: %w", txHash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (b *AlertBook) alertIDFromReceipt(alertSavedTopic common.Hash, receipt *types.Receipt) (uint64, bool) {
	for _, log := range receipt.Logs {
		if log == nil || log.Address != b.address {
			continue
		}
		if len(log.Topics) < 2 || log.Topics[0] != alertSavedTopic {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64(), true
	}
	return 0, false
}
