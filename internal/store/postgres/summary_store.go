package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// SummaryStore implements domain.SummaryStore using PostgreSQL.
type SummaryStore struct {
	pool *pgxpool.Pool
}

// NewSummaryStore creates a SummaryStore backed by the given connection pool.
func NewSummaryStore(pool *pgxpool.Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

// Create inserts the read-model row for a newly opened portfolio.
func (s *SummaryStore) Create(ctx context.Context, sum domain.PortfolioSummary) error {
	const query = `
		INSERT INTO portfolios (id, name, status, funds, loyalty_level, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`

	_, err := s.pool.Exec(ctx, query,
		sum.ID, sum.Name, string(sum.Status), sum.Funds.String(), string(sum.LoyaltyLevel),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres: create portfolio %s: %w", sum.ID, domain.ErrConflict)
		}
		return fmt.Errorf("postgres: create portfolio %s: %w", sum.ID, err)
	}
	return nil
}

// Update refreshes the mutable read-model columns after an accepted event or
// phase change.
func (s *SummaryStore) Update(ctx context.Context, sum domain.PortfolioSummary) error {
	const query = `
		UPDATE portfolios
		SET status = $2, funds = $3, loyalty_level = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		sum.ID, string(sum.Status), sum.Funds.String(), string(sum.LoyaltyLevel),
	)
	if err != nil {
		return fmt.Errorf("postgres: update portfolio %s: %w", sum.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const summarySelectCols = `id, name, status, funds, loyalty_level, opened_at, updated_at`

func scanSummary(scanner interface{ Scan(dest ...any) error }) (domain.PortfolioSummary, error) {
	var sum domain.PortfolioSummary
	var status, loyalty, funds string

	err := scanner.Scan(
		&sum.ID, &sum.Name, &status, &funds, &loyalty,
		&sum.OpenedAt, &sum.UpdatedAt,
	)
	if err != nil {
		return domain.PortfolioSummary{}, err
	}

	sum.Funds, err = decimal.NewFromString(funds)
	if err != nil {
		return domain.PortfolioSummary{}, fmt.Errorf("parse funds %q: %w", funds, err)
	}
	sum.Status = domain.PortfolioStatus(status)
	sum.LoyaltyLevel = domain.LoyaltyLevel(loyalty)
	return sum, nil
}

// GetByID retrieves a single portfolio summary.
func (s *SummaryStore) GetByID(ctx context.Context, id string) (domain.PortfolioSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+summarySelectCols+` FROM portfolios WHERE id = $1`, id)

	sum, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioSummary{}, domain.ErrNotFound
		}
		return domain.PortfolioSummary{}, fmt.Errorf("postgres: get portfolio %s: %w", id, err)
	}
	return sum, nil
}

// List returns portfolio summaries, optionally filtered by status, newest
// first, with pagination.
func (s *SummaryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.PortfolioSummary, error) {
	query := `SELECT ` + summarySelectCols + ` FROM portfolios`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list portfolios: %w", err)
	}
	defer rows.Close()

	var sums []domain.PortfolioSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan portfolios: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list portfolios: %w", err)
	}
	return sums, nil
}

// Count returns the total number of portfolios.
func (s *SummaryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM portfolios`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count portfolios: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.SummaryStore = (*SummaryStore)(nil)
