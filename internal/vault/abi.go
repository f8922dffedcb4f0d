package vault

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const factoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "vault", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"}
    ],
    "name": "VaultCreated",
    "type": "event"
  }
]`

const vaultABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "manager", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenIn", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "tokenOut", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "TradeExecuted",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "allowedTokens",
    "outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "maxAllocation",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const alertRegistryABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "vault", "type": "address"},
      {"internalType": "address", "name": "manager", "type": "address"},
      {"internalType": "string", "name": "reason", "type": "string"},
      {"internalType": "bytes", "name": "metadata", "type": "bytes"}
    ],
    "name": "saveAlert",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "id", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "vault", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "manager", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "reason", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
    ],
    "name": "AlertSaved",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "alertsCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "id", "type": "uint256"}],
    "name": "getAlert",
    "outputs": [
      {"internalType": "address", "name": "vault", "type": "address"},
      {"internalType": "address", "name": "manager", "type": "address"},
      {"internalType": "string", "name": "reason", "type": "string"},
      {"internalType": "uint256", "name": "timestamp", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	factoryABI     abi.ABI
	factoryABIOnce sync.Once
	factoryABIErr  error

	vaultABI     abi.ABI
	vaultABIOnce sync.Once
	vaultABIErr  error

	registryABI     abi.ABI
	registryABIOnce sync.Once
	registryABIErr  error
)

// FactoryABI returns the parsed vault factory ABI.
func FactoryABI() (abi.ABI, error) {
	factoryABIOnce.Do(func() {
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	return factoryABI, factoryABIErr
}

// VaultABI returns the parsed vault ABI.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// AlertRegistryABI returns the parsed alert registry ABI.
func AlertRegistryABI() (abi.ABI, error) {
	registryABIOnce.Do(func() {
		registryABI, registryABIErr = abi.JSON(strings.NewReader(alertRegistryABIJSON))
	})
	return registryABI, registryABIErr
}
