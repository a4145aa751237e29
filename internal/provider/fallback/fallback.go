// Package fallback is the deterministic, offline stand-in used when the real
// provider cannot be constructed. It never fails, so the rest of the
// pipeline (tool-call recording, cost computation, billing) is exercised
// identically regardless of which client ran.
package fallback

import (
	"context"
	"fmt"

	"github.com/vnmchuo/agent-ledger/internal/provider"
)

const (
	ProviderName = "fallback"
	ModelID      = "fallback/echo"

	// Rough chars-per-token heuristic; only needs to be deterministic and
	// proportional to prompt length.
	charsPerUnit = 4
)

type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Name() string { return ProviderName }

func (c *Client) Invoke(_ context.Context, prompt string) (*provider.Result, error) {
	output := fmt.Sprintf("[%s] %s", ModelID, prompt)
	return &provider.Result{
		ModelOutput: output,
		ModelID:     ModelID,
		Usage: provider.Usage{
			PromptUnits:     len(prompt)/charsPerUnit + 1,
			CompletionUnits: len(output)/charsPerUnit + 1,
			Provider:        ProviderName,
			Model:           ModelID,
		},
		// Empty trace: the executor records one synthetic completion call.
	}, nil
}
