// Package executor orchestrates the run lifecycle: create a pending record,
// select a client, invoke it, derive the cost, and finalize the run with its
// tool calls and billing event in one atomic store write.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/agent-ledger/internal/billing"
	"github.com/vnmchuo/agent-ledger/internal/directory"
	"github.com/vnmchuo/agent-ledger/internal/pricing"
	"github.com/vnmchuo/agent-ledger/internal/provider"
	"github.com/vnmchuo/agent-ledger/internal/run"
)

const (
	// Synthetic tool name recorded when the provider reports no explicit
	// tool calls: the completion itself is the single unit of work.
	syntheticToolName = "completion"

	// Finalize gets its own budget; it must not inherit a context the
	// invocation already exhausted.
	finalizeTimeout = 10 * time.Second

	maxSummaryLen = 512
)

// ClientSelector yields one usable client per run. Never fails.
type ClientSelector interface {
	Select(hint string) (provider.Client, string)
}

// CustomerDirectory resolves customer ids; returns directory.ErrNotFound for
// unknown customers.
type CustomerDirectory interface {
	Lookup(ctx context.Context, id string) (*directory.Customer, error)
}

type Options struct {
	InvokeTimeout time.Duration // default 30s
	MaxConcurrent int           // default 16
	Tracer        trace.Tracer  // required
}

type Executor struct {
	runs      run.Store
	directory CustomerDirectory
	selector  ClientSelector
	rates     *pricing.Table

	invokeTimeout time.Duration
	tracer        trace.Tracer

	wg  sync.WaitGroup
	sem chan struct{}
}

func New(runs run.Store, dir CustomerDirectory, sel ClientSelector, rates *pricing.Table, opts Options) *Executor {
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = 30 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}
	return &Executor{
		runs:          runs,
		directory:     dir,
		selector:      sel,
		rates:         rates,
		invokeTimeout: opts.InvokeTimeout,
		tracer:        opts.Tracer,
		sem:           make(chan struct{}, opts.MaxConcurrent),
	}
}

// Start validates the customer, creates a pending run, and kicks off the
// invocation in the background. The returned snapshot is pending; callers
// poll Get until EndedAt is set. Directory and store errors surface to the
// caller; provider errors never do.
func (e *Executor) Start(ctx context.Context, customerID, prompt, providerHint string) (*run.AgentRun, error) {
	if _, err := e.directory.Lookup(ctx, customerID); err != nil {
		return nil, err
	}

	r := &run.AgentRun{
		ID:           uuid.New().String(),
		CustomerID:   customerID,
		Prompt:       prompt,
		ProviderHint: providerHint,
		Status:       run.StatusPending,
		StartedAt:    time.Now().UTC(),
	}
	if err := e.runs.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	e.wg.Add(1)
	go e.execute(r.ID, r.CustomerID, r.Prompt, r.ProviderHint, r.StartedAt)

	snapshot := *r
	return &snapshot, nil
}

// Get returns the current run snapshot; run.ErrNotFound for unknown ids.
func (e *Executor) Get(ctx context.Context, runID string) (*run.AgentRun, error) {
	return e.runs.Get(ctx, runID)
}

// ListByCustomer returns a customer's runs, most recent first.
func (e *Executor) ListByCustomer(ctx context.Context, customerID string) ([]*run.AgentRun, error) {
	return e.runs.ListByCustomer(ctx, customerID)
}

// ListToolCalls returns a run's tool calls in sequence order.
func (e *Executor) ListToolCalls(ctx context.Context, runID string) ([]*run.ToolCall, error) {
	return e.runs.ListToolCalls(ctx, runID)
}

// Summary aggregates a customer's runs.
func (e *Executor) Summary(ctx context.Context, customerID string) (*run.Summary, error) {
	return e.runs.Summary(ctx, customerID)
}

// Wait blocks until all in-flight runs have reached a terminal state. Used
// for graceful shutdown and by tests.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// execute drives one run from pending to terminal. It runs detached from the
// caller's request context; the invocation is bounded by its own timeout so a
// hung provider drives the run to failed instead of leaving it pending.
func (e *Executor) execute(runID, customerID, prompt, hint string, startedAt time.Time) {
	defer e.wg.Done()
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), e.invokeTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "executor.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("customer_id", customerID),
		attribute.String("provider_hint", hint),
	)

	client, resolved := e.selector.Select(hint)
	span.SetAttributes(attribute.String("resolved_provider", resolved))

	began := time.Now()
	result, err := client.Invoke(ctx, prompt)
	latencyMs := time.Since(began).Milliseconds()
	if err != nil {
		log.Printf("executor: run %s failed (%s): %v", runID, provider.KindOf(err), err)
		e.finalizeFailed(runID, resolved, startedAt)
		return
	}

	amount, err := e.rates.Compute(result.Usage)
	if err != nil {
		// Treated identically to a provider failure: the run terminates as
		// failed, it never aborts the request pipeline.
		log.Printf("executor: run %s failed: %v", runID, err)
		e.finalizeFailed(runID, resolved, startedAt)
		return
	}

	toolCalls := make([]run.ToolCall, 0, len(result.ToolTrace))
	for i, tc := range result.ToolTrace {
		toolCalls = append(toolCalls, run.ToolCall{
			ID:            uuid.New().String(),
			RunID:         runID,
			SequenceNo:    i + 1,
			ToolName:      tc.Name,
			InputSummary:  tc.InputSummary,
			OutputSummary: tc.OutputSummary,
			LatencyMs:     tc.LatencyMs,
		})
	}
	if len(toolCalls) == 0 {
		toolCalls = append(toolCalls, run.ToolCall{
			ID:            uuid.New().String(),
			RunID:         runID,
			SequenceNo:    1,
			ToolName:      syntheticToolName,
			InputSummary:  truncate(prompt, maxSummaryLen),
			OutputSummary: truncate(result.ModelOutput, maxSummaryLen),
			LatencyMs:     latencyMs,
		})
	}

	ended := time.Now().UTC()
	params := run.FinalizeParams{
		Success:          true,
		ResolvedProvider: resolved,
		ResolvedModel:    result.ModelID,
		CostUSD:          amount,
		CallCount:        len(toolCalls),
		ToolCalls:        toolCalls,
		Billing: &billing.Event{
			ID:         uuid.New().String(),
			RunID:      runID,
			CustomerID: customerID,
			AmountUSD:  amount,
			Currency:   "usd",
			CreatedAt:  ended,
		},
		EndedAt:    ended,
		DurationMs: ended.Sub(startedAt).Milliseconds(),
	}
	e.finalize(runID, params)
}

func (e *Executor) finalizeFailed(runID, resolved string, startedAt time.Time) {
	ended := time.Now().UTC()
	e.finalize(runID, run.FinalizeParams{
		Success:          false,
		ResolvedProvider: resolved,
		EndedAt:          ended,
		DurationMs:       ended.Sub(startedAt).Milliseconds(),
	})
}

func (e *Executor) finalize(runID string, params run.FinalizeParams) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := e.runs.Finalize(ctx, runID, params); err != nil {
		// The run stays pending; a reconciliation sweep owns stale runs.
		log.Printf("executor: finalize run %s: %v", runID, err)
	}
}

// truncate cuts on a rune boundary; summaries must stay valid UTF-8 or the
// store rejects them.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
