package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vnmchuo/agent-ledger/internal/provider"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     "test-key",
		baseURL:    baseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
}

func TestNewWithoutKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("Expected error for empty api key")
	}
	if kind := provider.KindOf(err); kind != provider.KindInvalidCredential {
		t.Errorf("Expected invalid_credential, got %s", kind)
	}

	_, err = New("   ")
	if err == nil {
		t.Error("Expected error for blank api key")
	}
}

func TestInvoke_Mock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected Authorization header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-123",
			"model": "gpt-4o-mini",
			"choices": []interface{}{
				map[string]interface{}{
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "Hello from mock!",
					},
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     15,
				"completion_tokens": 25,
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	res, err := c.Invoke(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if res.ModelOutput != "Hello from mock!" {
		t.Errorf("Expected 'Hello from mock!', got %s", res.ModelOutput)
	}
	if res.ModelID != "gpt-4o-mini" {
		t.Errorf("Expected gpt-4o-mini, got %s", res.ModelID)
	}
	if res.Usage.PromptUnits != 15 {
		t.Errorf("Expected 15 prompt units, got %d", res.Usage.PromptUnits)
	}
	if res.Usage.CompletionUnits != 25 {
		t.Errorf("Expected 25 completion units, got %d", res.Usage.CompletionUnits)
	}
	if len(res.ToolTrace) != 0 {
		t.Errorf("Expected empty tool trace, got %d entries", len(res.ToolTrace))
	}
}

func TestInvoke_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-456",
			"model": "gpt-4o-mini",
			"choices": []interface{}{
				map[string]interface{}{
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "done",
						"tool_calls": []interface{}{
							map[string]interface{}{
								"id":   "call_1",
								"type": "function",
								"function": map[string]string{
									"name":      "search",
									"arguments": `{"q":"weather"}`,
								},
							},
							map[string]interface{}{
								"id":   "call_2",
								"type": "function",
								"function": map[string]string{
									"name":      "calculator",
									"arguments": `{"expr":"2+2"}`,
								},
							},
						},
					},
				},
			},
			"usage": map[string]int{
				"prompt_tokens":     40,
				"completion_tokens": 10,
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	res, err := c.Invoke(context.Background(), "what is the weather")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if len(res.ToolTrace) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(res.ToolTrace))
	}
	if res.ToolTrace[0].Name != "search" || res.ToolTrace[1].Name != "calculator" {
		t.Errorf("Unexpected tool names: %s, %s", res.ToolTrace[0].Name, res.ToolTrace[1].Name)
	}
	if res.Usage.ToolInvocations != 2 {
		t.Errorf("Expected 2 tool invocations in usage, got %d", res.Usage.ToolInvocations)
	}
}

func TestInvoke_ErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		want   provider.ErrorKind
	}{
		{http.StatusUnauthorized, provider.KindInvalidCredential},
		{http.StatusForbidden, provider.KindInvalidCredential},
		{http.StatusTooManyRequests, provider.KindRateLimited},
		{http.StatusInternalServerError, provider.KindUnavailable},
		{http.StatusBadGateway, provider.KindUnavailable},
		{http.StatusBadRequest, provider.KindUnknown},
	}

	for _, c := range cases {
		status := c.status
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := testClient(server.URL)
		_, err := client.Invoke(context.Background(), "hi")
		server.Close()

		if err == nil {
			t.Errorf("status %d: expected error", c.status)
			continue
		}
		if kind := provider.KindOf(err); kind != c.want {
			t.Errorf("status %d: expected kind %s, got %s", c.status, c.want, kind)
		}
	}
}

func TestInvoke_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := testClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Invoke(ctx, "hi")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if kind := provider.KindOf(err); kind != provider.KindTimeout {
		t.Errorf("Expected timeout, got %s", kind)
	}
}

func TestInvoke_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","model":"gpt-4o-mini","choices":[]}`))
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Invoke(context.Background(), "hi")
	if err == nil {
		t.Fatal("Expected error for empty choices")
	}
	if kind := provider.KindOf(err); kind != provider.KindUnknown {
		t.Errorf("Expected unknown, got %s", kind)
	}
}

func TestName(t *testing.T) {
	c, err := New("key")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Name() != "openai" {
		t.Errorf("Expected 'openai', got %s", c.Name())
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("a", maxSummaryLen-1) + "é"
	got := truncate(s, maxSummaryLen)
	if !utf8.ValidString(got) {
		t.Error("Truncated summary is not valid UTF-8")
	}
	if len(got) != maxSummaryLen-1 {
		t.Errorf("Expected cut before the split rune at %d bytes, got %d", maxSummaryLen-1, len(got))
	}

	if got := truncate(strings.Repeat("界", 300), maxSummaryLen); !utf8.ValidString(got) {
		t.Error("Truncated multi-byte summary is not valid UTF-8")
	}
}
