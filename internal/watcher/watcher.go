package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vaultwatch/internal/model"
	"vaultwatch/internal/registry"
	"vaultwatch/internal/vault"
)

const (
	logBuffer  = 128
	maxBackoff = time.Minute
)

// LogStreamer opens streaming log subscriptions.
type LogStreamer interface {
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// TradeHandler consumes decoded trade events. Called sequentially per
// vault, in upstream delivery order.
type TradeHandler interface {
	HandleTrade(ctx context.Context, ev model.TradeEvent)
}

// Registrar is the registry surface the factory stream needs.
type Registrar interface {
	Add(address string) error
}

// Watcher owns the live event subscriptions: one trade stream per watched
// vault plus one factory creation stream. Dropped streams are re-established
// with exponential backoff, retried indefinitely.
type Watcher struct {
	ctx          context.Context
	chain        LogStreamer
	handler      TradeHandler
	retryBackoff time.Duration
	logger       *zap.Logger
}

// New builds a Watcher. ctx bounds the lifetime of every subscription it
// starts.
func New(ctx context.Context, chain LogStreamer, handler TradeHandler, retryBackoff time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		ctx:          ctx,
		chain:        chain,
		handler:      handler,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the subscription and waits for its loop to exit, so no
// further events reach the handler once Stop returns.
func (h *handle) Stop() {
	h.cancel()
	<-h.done
}

// StartVault attaches a trade stream for one vault and returns its owned
// handle. Implements registry.Starter.
func (w *Watcher) StartVault(addr common.Address) (registry.Subscription, error) {
	topic, err := vault.TradeTopic()
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{topic}},
	}

	ctx, cancel := context.WithCancel(w.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.streamLoop(ctx, "vault "+addr.Hex(), query, func(lg types.Log) {
			ev, err := vault.DecodeTrade(lg)
			if err != nil {
				w.logger.Warn("trade decode failed",
					zap.String("vault", addr.Hex()),
					zap.String("tx_hash", lg.TxHash.Hex()),
					zap.Error(err),
				)
				return
			}
			w.handler.HandleTrade(ctx, ev)
		})
	}()

	return &handle{cancel: cancel, done: done}, nil
}

// WatchFactory follows the factory's creation stream and registers every
// newly created vault. Blocks until ctx is cancelled.
func (w *Watcher) WatchFactory(ctx context.Context, factory common.Address, reg Registrar) error {
	topic, err := vault.VaultCreatedTopic()
	if err != nil {
		return err
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{factory},
		Topics:    [][]common.Hash{{topic}},
	}

	w.streamLoop(ctx, "factory "+factory.Hex(), query, func(lg types.Log) {
		created, creator, err := vault.DecodeVaultCreated(lg)
		if err != nil {
			w.logger.Warn("factory decode failed", zap.String("tx_hash", lg.TxHash.Hex()), zap.Error(err))
			return
		}
		if err := reg.Add(created.Hex()); err != nil {
			if errors.Is(err, registry.ErrAlreadyWatched) {
				// Duplicate creation notification; nothing to do.
				return
			}
			w.logger.Error("register created vault failed", zap.String("vault", created.Hex()), zap.Error(err))
			return
		}
		w.logger.Info("vault created",
			zap.String("vault", created.Hex()),
			zap.String("creator", creator.Hex()),
			zap.Uint64("block", lg.BlockNumber),
		)
	})
	return nil
}

// streamLoop keeps one subscription alive until ctx is cancelled. Events
// are handled sequentially, preserving per-stream delivery order.
func (w *Watcher) streamLoop(ctx context.Context, name string, query ethereum.FilterQuery, handle func(types.Log)) {
	bo := newBackoff(w.retryBackoff, maxBackoff)

	for ctx.Err() == nil {
		logs := make(chan types.Log, logBuffer)
		sub, err := w.chain.SubscribeLogs(ctx, query, logs)
		if err != nil {
			w.logger.Warn("subscribe failed", zap.String("stream", name), zap.Error(err))
			if sleep(ctx, bo.next()) != nil {
				return
			}
			continue
		}

		w.logger.Info("subscribed", zap.String("stream", name))
		bo.reset()

		w.consume(ctx, name, sub, logs, handle)

		if ctx.Err() != nil {
			return
		}
		if sleep(ctx, bo.next()) != nil {
			return
		}
	}
}

func (w *Watcher) consume(ctx context.Context, name string, sub ethereum.Subscription, logs chan types.Log, handle func(types.Log)) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				w.logger.Warn("subscription dropped", zap.String("stream", name), zap.Error(err))
			}
			return
		case lg := <-logs:
			if lg.Removed {
				// Reorged-out log; the re-included version arrives separately.
				continue
			}
			handle(lg)
		}
	}
}
