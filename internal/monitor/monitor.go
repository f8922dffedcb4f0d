package monitor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultwatch/internal/committer"
	"vaultwatch/internal/model"
	"vaultwatch/internal/policy"
)

// AllowListSource reads a vault's live policy. Satisfied by
// vault.AllowListFetcher.
type AllowListSource interface {
	Fetch(ctx context.Context, vaultAddr, outputToken common.Address) (model.AllowList, error)
}

// CommitQueue accepts violation commit requests. Satisfied by
// committer.Committer.
type CommitQueue interface {
	Enqueue(ctx context.Context, req committer.Request) error
}

// Monitor ties the pipeline together: trade event in, fresh allow-list,
// policy verdict, one commit request per raised violation. Failures are
// isolated per event; nothing here halts ingestion for other vaults.
type Monitor struct {
	fetcher AllowListSource
	commits CommitQueue
	checks  []policy.Check
	logger  *zap.Logger
}

// New builds a Monitor using the default policy checks.
func New(fetcher AllowListSource, commits CommitQueue, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		fetcher: fetcher,
		commits: commits,
		checks:  policy.DefaultChecks(),
		logger:  logger,
	}
}

// HandleTrade evaluates one trade. Implements watcher.TradeHandler.
func (m *Monitor) HandleTrade(ctx context.Context, ev model.TradeEvent) {
	m.logger.Debug("trade observed",
		zap.String("vault", ev.Vault),
		zap.String("manager", ev.Manager),
		zap.String("token_out", ev.TokenOut),
		zap.String("amount", ev.Amount),
		zap.Uint64("block", ev.BlockNumber),
	)

	vaultAddr := common.HexToAddress(ev.Vault)
	outputToken := common.HexToAddress(ev.TokenOut)

	list, err := m.fetcher.Fetch(ctx, vaultAddr, outputToken)
	if err != nil {
		// Abandon this evaluation; a fetch failure must not pass as an
		// implicit allowed verdict.
		m.logger.Warn("allow-list fetch failed, evaluation abandoned",
			zap.String("vault", ev.Vault),
			zap.String("tx_hash", ev.TxHash),
			zap.Error(err),
		)
		return
	}

	verdict := policy.Evaluate(ev, list, m.checks...)
	if verdict.Allowed {
		m.logger.Debug("trade allowed", zap.String("vault", ev.Vault), zap.String("token_out", ev.TokenOut))
		return
	}

	detectedAt := time.Now().UTC()
	for _, violation := range verdict.Violations {
		m.logger.Warn("policy violation detected",
			zap.String("vault", ev.Vault),
			zap.String("manager", ev.Manager),
			zap.String("reason", violation.Reason),
			zap.String("tx_hash", ev.TxHash),
		)

		req := committer.Request{
			Vault:      vaultAddr,
			Manager:    common.HexToAddress(ev.Manager),
			Reason:     violation.Reason,
			DetectedAt: detectedAt,
		}
		if err := m.commits.Enqueue(ctx, req); err != nil {
			m.logger.Error("violation commit not queued",
				zap.String("vault", ev.Vault),
				zap.String("reason", violation.Reason),
				zap.Error(err),
			)
		}
	}
}
