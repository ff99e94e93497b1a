package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint clash.
const uniqueViolation = "23505"

// JournalStore implements domain.JournalStore using PostgreSQL. Events are
// stored as tagged JSON envelopes; the (portfolio_id, sequence_no) primary
// key turns concurrent appends into ErrConflict instead of a double write.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Append writes an event at the given sequence number.
func (s *JournalStore) Append(ctx context.Context, portfolioID string, seqNo int64, evt domain.PortfolioEvent) error {
	payload, err := domain.MarshalEvent(evt)
	if err != nil {
		return fmt.Errorf("postgres: encode event for %s: %w", portfolioID, err)
	}

	const query = `
		INSERT INTO portfolio_events (portfolio_id, sequence_no, event_type, payload)
		VALUES ($1, $2, $3, $4)`

	_, err = s.pool.Exec(ctx, query, portfolioID, seqNo, string(evt.EventType()), payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres: append %s seq %d: %w", portfolioID, seqNo, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: append %s seq %d: %w", portfolioID, seqNo, err)
	}
	return nil
}

// Load returns the ordered events with sequence number greater than afterSeq.
func (s *JournalStore) Load(ctx context.Context, portfolioID string, afterSeq int64) ([]domain.PersistedEvent, error) {
	const query = `
		SELECT sequence_no, payload, recorded_at
		FROM portfolio_events
		WHERE portfolio_id = $1 AND sequence_no > $2
		ORDER BY sequence_no ASC`

	rows, err := s.pool.Query(ctx, query, portfolioID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("postgres: load journal %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var events []domain.PersistedEvent
	for rows.Next() {
		pe := domain.PersistedEvent{PortfolioID: portfolioID}
		var payload []byte
		if err := rows.Scan(&pe.SequenceNo, &payload, &pe.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal %s: %w", portfolioID, err)
		}
		pe.Event, err = domain.UnmarshalEvent(payload)
		if err != nil {
			return nil, fmt.Errorf("postgres: decode journal %s seq %d: %w", portfolioID, pe.SequenceNo, err)
		}
		events = append(events, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load journal %s: %w", portfolioID, err)
	}
	return events, nil
}

// LastSequence returns the highest sequence number in the portfolio's
// journal, zero when the journal is empty.
func (s *JournalStore) LastSequence(ctx context.Context, portfolioID string) (int64, error) {
	var last int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_no), 0) FROM portfolio_events WHERE portfolio_id = $1`,
		portfolioID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("postgres: last sequence %s: %w", portfolioID, err)
	}
	return last, nil
}

// Compile-time interface check.
var _ domain.JournalStore = (*JournalStore)(nil)
