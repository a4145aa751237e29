package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vnmchuo/agent-ledger/internal/pricing"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

const runColumns = `id, customer_id, prompt, provider_hint, resolved_provider, resolved_model,
	status, success, cost_usd_e4, call_count, started_at, ended_at, duration_ms`

func (s *PostgresStore) Create(ctx context.Context, r *AgentRun) error {
	query := `
		INSERT INTO agent_runs (id, customer_id, prompt, provider_hint, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.Exec(ctx, query, r.ID, r.CustomerID, r.Prompt, r.ProviderHint, string(r.Status), r.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs WHERE id = $1`
	r, err := scanRun(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]*AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs WHERE customer_id = $1 ORDER BY started_at DESC`
	rows, err := s.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*AgentRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

func (s *PostgresStore) ListToolCalls(ctx context.Context, runID string) ([]*ToolCall, error) {
	query := `
		SELECT id, run_id, sequence_no, tool_name, input_summary, output_summary, latency_ms
		FROM tool_calls
		WHERE run_id = $1
		ORDER BY sequence_no ASC
	`
	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*ToolCall
	for rows.Next() {
		var tc ToolCall
		err := rows.Scan(&tc.ID, &tc.RunID, &tc.SequenceNo, &tc.ToolName, &tc.InputSummary, &tc.OutputSummary, &tc.LatencyMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		calls = append(calls, &tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tool calls: %w", err)
	}
	return calls, nil
}

// Finalize applies one terminal transition as a single transaction: tool-call
// inserts, the billing event (when present), and last the run update, guarded
// on status = 'pending' so a terminal state is never overwritten.
func (s *PostgresStore) Finalize(ctx context.Context, runID string, p FinalizeParams) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tc := range p.ToolCalls {
		_, err := tx.Exec(ctx, `
			INSERT INTO tool_calls (id, run_id, sequence_no, tool_name, input_summary, output_summary, latency_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, tc.ID, runID, tc.SequenceNo, tc.ToolName, tc.InputSummary, tc.OutputSummary, tc.LatencyMs)
		if err != nil {
			return fmt.Errorf("failed to insert tool call: %w", err)
		}
	}

	if p.Billing != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO billing_events (id, run_id, customer_id, amount_usd_e4, currency, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.Billing.ID, runID, p.Billing.CustomerID, int64(p.Billing.AmountUSD), p.Billing.Currency, p.Billing.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert billing event: %w", err)
		}
	}

	status := StatusFailed
	if p.Success {
		status = StatusCompleted
	}
	tag, err := tx.Exec(ctx, `
		UPDATE agent_runs
		SET status = $1, success = $2, resolved_provider = $3, resolved_model = $4,
		    cost_usd_e4 = $5, call_count = $6, ended_at = $7, duration_ms = $8
		WHERE id = $9 AND status = 'pending'
	`, string(status), p.Success, p.ResolvedProvider, p.ResolvedModel,
		int64(p.CostUSD), p.CallCount, p.EndedAt, p.DurationMs, runID)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinal
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalize: %w", err)
	}
	return nil
}

func (s *PostgresStore) Summary(ctx context.Context, customerID string) (*Summary, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(cost_usd_e4), 0),
		       COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END), 0)
		FROM agent_runs
		WHERE customer_id = $1
	`
	var sum Summary
	var totalE4 int64
	err := s.db.QueryRow(ctx, query, customerID).Scan(&sum.TotalRuns, &totalE4, &sum.SuccessRate)
	if err != nil {
		return nil, fmt.Errorf("failed to get run summary: %w", err)
	}
	sum.TotalCostUSD = pricing.Amount(totalE4)
	if sum.TotalRuns > 0 {
		sum.AvgCostUSD = pricing.Amount(totalE4 / int64(sum.TotalRuns))
	}
	return &sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*AgentRun, error) {
	var r AgentRun
	err := row.Scan(
		&r.ID, &r.CustomerID, &r.Prompt, &r.ProviderHint, &r.ResolvedProvider, &r.ResolvedModel,
		&r.Status, &r.Success, &r.CostUSD, &r.CallCount, &r.StartedAt, &r.EndedAt, &r.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
