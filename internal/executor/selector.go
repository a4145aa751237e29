package executor

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/agent-ledger/internal/provider"
	"github.com/vnmchuo/agent-ledger/internal/provider/fallback"
	"github.com/vnmchuo/agent-ledger/internal/provider/openai"
)

// Selector resolves one client per run. Policy: try the real client; any
// construction failure, unsupported hint, or an open health breaker resolves
// to the fallback. Selection never fails — there is always a usable client.
//
// The credential is re-read on every selection, so a key added or revoked
// between runs takes effect immediately.
type Selector struct {
	credentials func() string
	breaker     *gobreaker.CircuitBreaker
	fb          *fallback.Client

	// build seam for tests; defaults to the real constructor.
	build func(apiKey string) (provider.Client, error)
}

func NewSelector(credentials func() string) *Selector {
	settings := gobreaker.Settings{
		Name:        openai.ProviderName,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Selector{
		credentials: credentials,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		fb:          fallback.New(),
		build: func(apiKey string) (provider.Client, error) {
			return openai.New(apiKey)
		},
	}
}

// Select returns the client for this run and the resolved provider name.
// When the real client cannot serve, the resolved name is the fallback's
// identifier, not the hint.
func (s *Selector) Select(hint string) (provider.Client, string) {
	if hint != "" && hint != openai.ProviderName {
		return s.fb, s.fb.Name()
	}
	if s.breaker.State() == gobreaker.StateOpen {
		return s.fb, s.fb.Name()
	}

	client, err := s.build(s.credentials())
	if err != nil {
		return s.fb, s.fb.Name()
	}
	return &breakerClient{inner: client, breaker: s.breaker}, client.Name()
}

// breakerClient feeds invocation outcomes into the health breaker so that a
// flapping real provider routes subsequent runs to the fallback.
type breakerClient struct {
	inner   provider.Client
	breaker *gobreaker.CircuitBreaker
}

func (c *breakerClient) Name() string { return c.inner.Name() }

func (c *breakerClient) Invoke(ctx context.Context, prompt string) (*provider.Result, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.inner.Invoke(ctx, prompt)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, provider.Errorf(provider.KindUnavailable, "%s: circuit breaker open", c.inner.Name())
		}
		return nil, err
	}
	return result.(*provider.Result), nil
}
