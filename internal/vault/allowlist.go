package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"vaultwatch/internal/model"
)

// ContractCaller is the eth_call surface shared by the allow-list fetcher
// and the registry readers. Satisfied by chain.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AllowListFetcher reads a vault's trading policy from the chain. Reads
// are never cached: a stale allow-list would turn a freshly revoked token
// into a false negative.
type AllowListFetcher struct {
	chain  ContractCaller
	logger *zap.Logger
}

// NewAllowListFetcher builds a fetcher bound to a chain client.
func NewAllowListFetcher(chainClient ContractCaller, logger *zap.Logger) *AllowListFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllowListFetcher{chain: chainClient, logger: logger}
}

// Fetch returns the vault's current allow-list plus the allocation
// ceiling for the given output token. The ceiling is optional: a vault
// without one (or a reverting maxAllocation call) yields nil, while a
// failed allowedTokens read is a hard error and must abandon the
// evaluation.
func (f *AllowListFetcher) Fetch(ctx context.Context, vaultAddr common.Address, outputToken common.Address) (model.AllowList, error) {
	if f.chain == nil {
		return model.AllowList{}, fmt.Errorf("chain client is nil")
	}

	parsed, err := VaultABI()
	if err != nil {
		return model.AllowList{}, fmt.Errorf("parse vault abi: %w", err)
	}

	values, err := callMethod(ctx, f.chain, vaultAddr, parsed, "allowedTokens")
	if err != nil {
		return model.AllowList{}, fmt.Errorf("allowed tokens: %w", err)
	}
	addresses, err := asAddressSlice(values[0])
	if err != nil {
		return model.AllowList{}, fmt.Errorf("allowed tokens: %w", err)
	}

	tokens := make([]string, 0, len(addresses))
	for _, token := range addresses {
		tokens = append(tokens, token.Hex())
	}

	list := model.AllowList{
		Vault:  vaultAddr.Hex(),
		Tokens: tokens,
	}

	values, err = callMethod(ctx, f.chain, vaultAddr, parsed, "maxAllocation", outputToken)
	if err != nil {
		// A revert means the vault simply has no ceiling. Anything else is
		// a degraded read: the check is silently skipped for this trade, so
		// it has to be visible in the logs.
		if isRevert(err) {
			f.logger.Debug("vault exposes no allocation ceiling",
				zap.String("vault", vaultAddr.Hex()),
				zap.String("token", outputToken.Hex()),
			)
		} else {
			f.logger.Warn("max allocation read failed, ceiling check skipped",
				zap.String("vault", vaultAddr.Hex()),
				zap.String("token", outputToken.Hex()),
				zap.Error(err),
			)
		}
		return list, nil
	}
	ceiling, err := asBigInt(values[0])
	if err != nil {
		f.logger.Debug("max allocation decode failed", zap.String("vault", vaultAddr.Hex()), zap.Error(err))
		return list, nil
	}
	if ceiling.Sign() > 0 {
		list.MaxAllocation = ceiling
	}

	return list, nil
}

// isRevert reports whether an eth_call error is a contract revert rather
// than a transport failure. Reverts carry error data on the RPC error.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func callMethod(ctx context.Context, chainClient ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := chainClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty result for %s", method)
	}
	return values, nil
}

func asAddressSlice(value interface{}) ([]common.Address, error) {
	switch v := value.(type) {
	case []common.Address:
		return v, nil
	case []interface{}:
		out := make([]common.Address, 0, len(v))
		for _, item := range v {
			addr, err := asAddress(item)
			if err != nil {
				return nil, err
			}
			out = append(out, addr)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported address slice type %T", value)
	}
}
