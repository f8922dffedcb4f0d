package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"vaultwatch/internal/model"
)

// TradeTopic returns the topic0 hash of the TradeExecuted event.
func TradeTopic() (common.Hash, error) {
	parsed, err := VaultABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["TradeExecuted"].ID, nil
}

// VaultCreatedTopic returns the topic0 hash of the VaultCreated event.
func VaultCreatedTopic() (common.Hash, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["VaultCreated"].ID, nil
}

// DecodeTrade converts a TradeExecuted log into a TradeEvent.
func DecodeTrade(log types.Log) (model.TradeEvent, error) {
	parsed, err := VaultABI()
	if err != nil {
		return model.TradeEvent{}, err
	}
	event := parsed.Events["TradeExecuted"]

	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.TradeEvent{}, fmt.Errorf("unexpected topic0 for trade log")
	}

	var indexed struct {
		Manager common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return model.TradeEvent{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("unpack trade: %w", err)
	}
	if len(values) != 3 {
		return model.TradeEvent{}, fmt.Errorf("unexpected trade values: %d", len(values))
	}

	tokenIn, err := asAddress(values[0])
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("token in: %w", err)
	}
	tokenOut, err := asAddress(values[1])
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("token out: %w", err)
	}
	amount, err := asBigInt(values[2])
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("amount: %w", err)
	}

	return model.TradeEvent{
		Vault:       log.Address.Hex(),
		Manager:     indexed.Manager.Hex(),
		TokenIn:     tokenIn.Hex(),
		TokenOut:    tokenOut.Hex(),
		Amount:      amount.String(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
	}, nil
}

// DecodeVaultCreated extracts the new vault and creator addresses from a
// VaultCreated log.
func DecodeVaultCreated(log types.Log) (common.Address, common.Address, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	event := parsed.Events["VaultCreated"]

	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return common.Address{}, common.Address{}, fmt.Errorf("unexpected topic0 for factory log")
	}

	var indexed struct {
		Vault   common.Address
		Creator common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse topics: %w", err)
	}

	return indexed.Vault, indexed.Creator, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func newBig(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported integer type %T", value)
	}
}
