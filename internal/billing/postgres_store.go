package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vnmchuo/agent-ledger/internal/pricing"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetByRun(ctx context.Context, runID string) (*Event, error) {
	query := `
		SELECT id, run_id, customer_id, amount_usd_e4, currency, created_at
		FROM billing_events
		WHERE run_id = $1
	`
	var e Event
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&e.ID, &e.RunID, &e.CustomerID, &e.AmountUSD, &e.Currency, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get billing event: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string, from, to time.Time) ([]*Event, error) {
	query := `
		SELECT id, run_id, customer_id, amount_usd_e4, currency, created_at
		FROM billing_events
		WHERE customer_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, customerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		err := rows.Scan(&e.ID, &e.RunID, &e.CustomerID, &e.AmountUSD, &e.Currency, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) TotalByCustomer(ctx context.Context, customerID string, from, to time.Time) (pricing.Amount, error) {
	query := `
		SELECT COALESCE(SUM(amount_usd_e4), 0)
		FROM billing_events
		WHERE customer_id = $1 AND created_at BETWEEN $2 AND $3
	`
	var total int64
	err := s.db.QueryRow(ctx, query, customerID, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total cost: %w", err)
	}
	return pricing.Amount(total), nil
}
