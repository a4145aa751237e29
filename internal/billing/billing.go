package billing

import (
	"context"
	"errors"
	"time"

	"github.com/vnmchuo/agent-ledger/internal/pricing"
)

var ErrNotFound = errors.New("billing: event not found")

// Event is the financial record of a completed run's cost. Created at most
// once per run, only when the run reaches a successful terminal state, with
// an amount equal to the run's finalized cost.
type Event struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	CustomerID string         `json:"customer_id"`
	AmountUSD  pricing.Amount `json:"amount_usd"`
	Currency   string         `json:"currency"`
	CreatedAt  time.Time      `json:"created_at"`
}

type Store interface {
	GetByRun(ctx context.Context, runID string) (*Event, error)
	ListByCustomer(ctx context.Context, customerID string, from, to time.Time) ([]*Event, error)
	TotalByCustomer(ctx context.Context, customerID string, from, to time.Time) (pricing.Amount, error)
}
