// Package run holds the AgentRun and ToolCall entities and their durable
// store. Runs are written only by the executor; everything else reads.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/vnmchuo/agent-ledger/internal/billing"
	"github.com/vnmchuo/agent-ledger/internal/pricing"
)

var (
	ErrNotFound = errors.New("run: not found")

	// ErrAlreadyFinal is returned when a finalize races a previous terminal
	// write. Terminal state is written exactly once and never reversed.
	ErrAlreadyFinal = errors.New("run: already finalized")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AgentRun tracks one provider invocation end-to-end. EndedAt is set iff the
// status is terminal; CostUSD and CallCount are fixed once terminal.
type AgentRun struct {
	ID               string         `json:"id"`
	CustomerID       string         `json:"customer_id"`
	Prompt           string         `json:"prompt"`
	ProviderHint     string         `json:"provider_hint,omitempty"`
	ResolvedProvider string         `json:"resolved_provider,omitempty"`
	ResolvedModel    string         `json:"resolved_model,omitempty"`
	Status           Status         `json:"status"`
	Success          bool           `json:"success"`
	CostUSD          pricing.Amount `json:"cost_usd"`
	CallCount        int            `json:"call_count"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          *time.Time     `json:"ended_at,omitempty"`
	DurationMs       int64          `json:"duration_ms,omitempty"`
}

// ToolCall is append-only, ordered by SequenceNo starting at 1. If the
// provider made no explicit tool calls, the run carries one synthetic row for
// the completion call itself.
type ToolCall struct {
	ID            string `json:"id"`
	RunID         string `json:"run_id"`
	SequenceNo    int    `json:"sequence_no"`
	ToolName      string `json:"tool_name"`
	InputSummary  string `json:"input_summary,omitempty"`
	OutputSummary string `json:"output_summary,omitempty"`
	LatencyMs     int64  `json:"latency_ms"`
}

// Summary aggregates a customer's runs.
type Summary struct {
	TotalRuns    int            `json:"total_runs"`
	TotalCostUSD pricing.Amount `json:"total_cost_usd"`
	AvgCostUSD   pricing.Amount `json:"avg_cost_usd"`
	SuccessRate  float64        `json:"success_rate"`
}

// FinalizeParams carries everything belonging to one terminal transition.
// The store applies it atomically: a reader never observes a terminal run
// with only part of its tool calls or a missing billing event.
type FinalizeParams struct {
	Success          bool
	ResolvedProvider string
	ResolvedModel    string
	CostUSD          pricing.Amount
	CallCount        int
	ToolCalls        []ToolCall
	Billing          *billing.Event // nil for failed runs
	EndedAt          time.Time
	DurationMs       int64
}

type Store interface {
	Create(ctx context.Context, r *AgentRun) error
	Get(ctx context.Context, id string) (*AgentRun, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*AgentRun, error)
	ListToolCalls(ctx context.Context, runID string) ([]*ToolCall, error)
	Finalize(ctx context.Context, runID string, p FinalizeParams) error
	Summary(ctx context.Context, customerID string) (*Summary, error)
}
