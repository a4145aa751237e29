// Package api is the HTTP surface: a thin caller that submits run requests
// and polls run status. All run semantics live in the executor.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/agent-ledger/internal/billing"
	"github.com/vnmchuo/agent-ledger/internal/directory"
	"github.com/vnmchuo/agent-ledger/internal/run"
	"github.com/vnmchuo/agent-ledger/pkg/ratelimit"
)

type RunService interface {
	Start(ctx context.Context, customerID, prompt, providerHint string) (*run.AgentRun, error)
	Get(ctx context.Context, runID string) (*run.AgentRun, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*run.AgentRun, error)
	ListToolCalls(ctx context.Context, runID string) ([]*run.ToolCall, error)
	Summary(ctx context.Context, customerID string) (*run.Summary, error)
}

type CustomerService interface {
	Create(ctx context.Context, c *directory.Customer) error
	Lookup(ctx context.Context, id string) (*directory.Customer, error)
	List(ctx context.Context) ([]*directory.Customer, error)
}

type Handler struct {
	runs      RunService
	customers CustomerService
	billing   billing.Store
	limiter   *ratelimit.Limiter
	tracer    trace.Tracer
}

func NewHandler(runs RunService, customers CustomerService, billingStore billing.Store, limiter *ratelimit.Limiter, tracer trace.Tracer) *Handler {
	return &Handler{
		runs:      runs,
		customers: customers,
		billing:   billingStore,
		limiter:   limiter,
		tracer:    tracer,
	}
}

type startRunRequest struct {
	CustomerID string `json:"customer_id"`
	Prompt     string `json:"prompt"`
	Provider   string `json:"provider,omitempty"`
}

func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "customer_id and prompt are required")
		return
	}

	_, span := h.tracer.Start(ctx, "api.start_run")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer_id", req.CustomerID),
		attribute.String("provider_hint", req.Provider),
	)

	allowed, err := h.limiter.Allow(ctx, req.CustomerID)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60s")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	started, err := h.runs.Start(ctx, req.CustomerID, req.Prompt, req.Provider)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "customer not found")
			return
		}
		// The run's own state could not be durably recorded; the caller may
		// retry start.
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry")
		return
	}

	writeJSON(w, http.StatusAccepted, started)
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	found, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) HandleListRunToolCalls(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := h.runs.Get(r.Context(), runID); err != nil {
		if errors.Is(err, run.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	calls, err := h.runs.ListToolCalls(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     runID,
		"tool_calls": calls,
	})
}

func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	runs, err := h.runs.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id": customerID,
		"runs":        runs,
	})
}

func (h *Handler) HandleRunSummary(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	summary, err := h.runs.Summary(r.Context(), customerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type createCustomerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

func (h *Handler) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c := &directory.Customer{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Email:      req.Email,
		ExternalID: req.ExternalID,
	}
	if err := h.customers.Create(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
	})
}

// HandleUsage returns a customer's billing events and total cost for a time
// window (default: last 30 days).
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	if _, err := h.customers.Lookup(ctx, customerID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, http.StatusNotFound, "customer not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'from' date format (use RFC3339)")
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'to' date format (use RFC3339)")
			return
		}
	}

	events, err := h.billing.ListByCustomer(ctx, customerID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := h.billing.TotalByCustomer(ctx, customerID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customer_id":    customerID,
		"total_events":   len(events),
		"total_cost_usd": total,
		"events":         events,
		"from":           from,
		"to":             to,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
