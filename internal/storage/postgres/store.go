package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"vaultwatch/internal/model"
)

// Store archives confirmed alerts in Postgres. Write-only from the
// process's point of view: dashboards query it, vaultwatch never does.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the alerts table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			tx_ref TEXT NOT NULL,
			alert_id BIGINT NOT NULL,
			vault TEXT NOT NULL,
			manager TEXT NOT NULL,
			reason TEXT NOT NULL,
			category TEXT NOT NULL,
			detected_at_ms BIGINT NOT NULL,
			block_ref BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tx_ref, alert_id)
		)
	`)
	return err
}

// SaveAlert inserts one confirmed alert. Re-inserting the same commit is
// a no-op, so replays after reconnects stay harmless.
func (s *Store) SaveAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			tx_ref, alert_id, vault, manager, reason, category, detected_at_ms, block_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_ref, alert_id) DO NOTHING
	`,
		alert.TxRef,
		int64(alert.ID),
		alert.Vault,
		alert.Manager,
		alert.Reason,
		alert.Category,
		alert.Timestamp,
		int64(alert.BlockRef),
	)
	return err
}
