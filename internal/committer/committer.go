package committer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultwatch/internal/model"
	"vaultwatch/internal/vault"
)

// ErrQueueFull is returned when a commit request cannot be accepted
// without blocking ingestion. The violation is reported by the caller's
// log; it is not silently dropped.
var ErrQueueFull = errors.New("commit queue full")

// Request is one pending violation commit.
type Request struct {
	Vault      common.Address
	Manager    common.Address
	Reason     string
	Metadata   []byte
	DetectedAt time.Time
}

// Submitter performs a single submit-and-confirm round trip against the
// alert registry.
type Submitter interface {
	Submit(ctx context.Context, vaultAddr, manager common.Address, reason string, metadata []byte) (vault.Confirmation, error)
}

// Committer turns violation verdicts into confirmed on-chain alerts. All
// requests drain through one buffered channel consumed by a single worker,
// so commits are strictly serialized: the signing identity's transaction
// sequence can never interleave, and a second commit starts only after
// the first reaches Confirmed or Failed.
type Committer struct {
	submitter    Submitter
	publish      func(model.Alert)
	queue        chan Request
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// New builds a Committer. publish receives every Confirmed alert; it is
// never called for Pending, Submitted, or Failed ones.
func New(submitter Submitter, publish func(model.Alert), queueSize, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	return &Committer{
		submitter:    submitter,
		publish:      publish,
		queue:        make(chan Request, queueSize),
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

// Enqueue hands a violation to the commit worker. Fails fast with
// ErrQueueFull instead of blocking the event stream that detected it.
func (c *Committer) Enqueue(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled. Exactly one commit is in
// flight at any time.
func (c *Committer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.queue:
			c.commit(ctx, req)
		}
	}
}

func (c *Committer) commit(ctx context.Context, req Request) {
	fields := []zap.Field{
		zap.String("vault", req.Vault.Hex()),
		zap.String("manager", req.Manager.Hex()),
		zap.String("reason", req.Reason),
	}

	c.logger.Info("alert commit pending", append(fields, zap.String("state", string(model.AlertPending)))...)

	var conf vault.Confirmation
	delay := c.retryBackoff
	for attempt := 0; ; attempt++ {
		var err error
		conf, err = c.submitter.Submit(ctx, req.Vault, req.Manager, req.Reason, req.Metadata)
		if err == nil {
			break
		}

		c.logger.Warn("alert commit attempt failed",
			append(fields, zap.Int("attempt", attempt+1), zap.String("state", string(model.AlertSubmitted)), zap.Error(err))...,
		)

		if attempt >= c.maxRetries {
			// Terminal for this alert only; the pipeline keeps running and
			// the violation is never broadcast without on-chain proof.
			c.logger.Error("alert commit failed", append(fields, zap.String("state", string(model.AlertFailed)))...)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Error("alert commit abandoned on shutdown", append(fields, zap.String("state", string(model.AlertFailed)))...)
			return
		case <-timer.C:
		}
		delay *= 2
	}

	alert := model.Alert{
		ID:        conf.ID,
		Vault:     req.Vault.Hex(),
		Manager:   req.Manager.Hex(),
		Reason:    req.Reason,
		Timestamp: req.DetectedAt.UnixMilli(),
		Category:  model.CategoryViolation,
		TxRef:     conf.TxHash,
		BlockRef:  conf.BlockNumber,
	}

	c.logger.Info("alert confirmed",
		append(fields,
			zap.String("state", string(model.AlertConfirmed)),
			zap.Uint64("id", alert.ID),
			zap.String("tx_ref", alert.TxRef),
			zap.Uint64("block_ref", alert.BlockRef),
		)...,
	)

	if c.publish != nil {
		c.publish(alert)
	}
}
