package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/vnmchuo/agent-ledger/internal/provider"
)

const (
	ProviderName = "openai"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// Summaries recorded per tool call stay bounded regardless of how much
	// the model sends back.
	maxSummaryLen = 512
)

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// New constructs a real client. A missing credential fails fast here; falling
// back to the offline client is the selector's decision, not the client's.
func New(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, provider.Errorf(provider.KindInvalidCredential, "openai: api key is empty")
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Invoke(ctx context.Context, prompt string) (*provider.Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, provider.Errorf(provider.KindUnknown, "openai: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, provider.Errorf(provider.KindUnknown, "openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, provider.Errorf(provider.KindTimeout, "openai: %w", err)
		}
		return nil, provider.Errorf(provider.KindUnavailable, "openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, provider.Errorf(kindForStatus(resp.StatusCode),
			"openai: api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, provider.Errorf(provider.KindUnknown, "openai: decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, provider.Errorf(provider.KindUnknown, "openai: api returned no choices")
	}

	msg := chatResp.Choices[0].Message
	trace := make([]provider.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		trace = append(trace, provider.ToolCall{
			Name:          tc.Function.Name,
			InputSummary:  truncate(tc.Function.Arguments, maxSummaryLen),
			OutputSummary: truncate(msg.Content, maxSummaryLen),
		})
	}

	model := chatResp.Model
	if model == "" {
		model = c.model
	}

	return &provider.Result{
		ModelOutput: msg.Content,
		ModelID:     model,
		Usage: provider.Usage{
			PromptUnits:     chatResp.Usage.PromptTokens,
			CompletionUnits: chatResp.Usage.CompletionTokens,
			ToolInvocations: len(trace),
			Provider:        ProviderName,
			Model:           model,
		},
		ToolTrace: trace,
	}, nil
}

func kindForStatus(status int) provider.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.KindInvalidCredential
	case status == http.StatusTooManyRequests:
		return provider.KindRateLimited
	case status >= 500:
		return provider.KindUnavailable
	default:
		return provider.KindUnknown
	}
}

// truncate cuts on a rune boundary so summaries stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
