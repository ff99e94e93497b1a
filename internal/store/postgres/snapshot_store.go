package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Each
// portfolio keeps exactly one snapshot row, upserted on save.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save upserts the snapshot for its portfolio.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	payload, err := domain.MarshalState(snap.State)
	if err != nil {
		return fmt.Errorf("postgres: encode snapshot %s: %w", snap.PortfolioID, err)
	}

	const query = `
		INSERT INTO portfolio_snapshots (portfolio_id, sequence_no, state, taken_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (portfolio_id) DO UPDATE
		SET sequence_no = EXCLUDED.sequence_no,
		    state = EXCLUDED.state,
		    taken_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, snap.PortfolioID, snap.SequenceNo, payload); err != nil {
		return fmt.Errorf("postgres: save snapshot %s: %w", snap.PortfolioID, err)
	}
	return nil
}

// Load returns the portfolio's snapshot, or ErrNotFound when none exists.
func (s *SnapshotStore) Load(ctx context.Context, portfolioID string) (domain.Snapshot, error) {
	snap := domain.Snapshot{PortfolioID: portfolioID}
	var payload []byte

	err := s.pool.QueryRow(ctx,
		`SELECT sequence_no, state, taken_at FROM portfolio_snapshots WHERE portfolio_id = $1`,
		portfolioID,
	).Scan(&snap.SequenceNo, &payload, &snap.TakenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Snapshot{}, domain.ErrNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("postgres: load snapshot %s: %w", portfolioID, err)
	}

	snap.State, err = domain.UnmarshalState(payload)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: decode snapshot %s: %w", portfolioID, err)
	}
	return snap, nil
}

// Delete removes the portfolio's snapshot if present.
func (s *SnapshotStore) Delete(ctx context.Context, portfolioID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM portfolio_snapshots WHERE portfolio_id = $1`, portfolioID,
	); err != nil {
		return fmt.Errorf("postgres: delete snapshot %s: %w", portfolioID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
