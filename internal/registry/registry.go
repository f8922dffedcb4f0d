package registry

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrInvalidAddress marks a malformed vault address. Non-fatal,
	// surfaced to the caller.
	ErrInvalidAddress = errors.New("invalid vault address")
	// ErrAlreadyWatched is returned on idempotent re-adds.
	ErrAlreadyWatched = errors.New("vault already watched")
	// ErrNotWatched is returned when removing an unknown vault.
	ErrNotWatched = errors.New("vault not watched")
)

// Subscription is the owned handle for one vault's event stream.
type Subscription interface {
	Stop()
}

// Starter attaches a live event subscription for a vault address.
type Starter interface {
	StartVault(address common.Address) (Subscription, error)
}

type entry struct {
	sub       Subscription
	watchedAt time.Time
}

// Registry is the authoritative set of watched vaults. Every mutation
// also mutates exactly one subscription, under the same lock, so no event
// can arrive for an address after Remove returns.
type Registry struct {
	starter Starter
	logger  *zap.Logger

	mu     sync.Mutex
	vaults map[common.Address]entry
}

// New builds an empty registry.
func New(starter Starter, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		starter: starter,
		logger:  logger,
		vaults:  make(map[common.Address]entry),
	}
}

// Add normalizes the address, starts a subscription, and records the
// vault. Re-adding a watched address (any casing) is a no-op returning
// ErrAlreadyWatched.
func (r *Registry) Add(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.vaults[addr]; ok {
		return ErrAlreadyWatched
	}

	sub, err := r.starter.StartVault(addr)
	if err != nil {
		return fmt.Errorf("start subscription for %s: %w", addr.Hex(), err)
	}

	r.vaults[addr] = entry{sub: sub, watchedAt: time.Now().UTC()}
	r.logger.Info("vault watched", zap.String("vault", addr.Hex()), zap.Int("watched", len(r.vaults)))
	return nil
}

// Remove revokes the vault's subscription handle and deletes the entry.
// The handle is stopped before the entry disappears, leaving no dangling
// listener.
func (r *Registry) Remove(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.vaults[addr]
	if !ok {
		return ErrNotWatched
	}

	e.sub.Stop()
	delete(r.vaults, addr)
	r.logger.Info("vault unwatched", zap.String("vault", addr.Hex()), zap.Int("watched", len(r.vaults)))
	return nil
}

// List returns a lazy, restartable sequence of watched vault addresses in
// canonical lower-case form, reflecting registry state at call time.
func (r *Registry) List() iter.Seq[string] {
	r.mu.Lock()
	snapshot := make([]string, 0, len(r.vaults))
	for addr := range r.vaults {
		snapshot = append(snapshot, strings.ToLower(addr.Hex()))
	}
	r.mu.Unlock()
	sort.Strings(snapshot)

	return func(yield func(string) bool) {
		for _, addr := range snapshot {
			if !yield(addr) {
				return
			}
		}
	}
}

// Len returns the current number of watched vaults.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vaults)
}
