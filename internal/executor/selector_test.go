package executor

import (
	"context"
	"testing"

	"github.com/vnmchuo/agent-ledger/internal/provider"
)

type failingClient struct{}

func (c *failingClient) Name() string { return "openai" }

func (c *failingClient) Invoke(ctx context.Context, prompt string) (*provider.Result, error) {
	return nil, provider.Errorf(provider.KindUnavailable, "connection refused")
}

func TestSelectWithoutCredential(t *testing.T) {
	s := NewSelector(func() string { return "" })

	client, resolved := s.Select("")
	if resolved != "fallback" {
		t.Errorf("Expected fallback, got %s", resolved)
	}
	if client.Name() != "fallback" {
		t.Errorf("Expected fallback client, got %s", client.Name())
	}

	// Selection must not only succeed, the client must be usable.
	if _, err := client.Invoke(context.Background(), "hi"); err != nil {
		t.Errorf("Fallback client must be usable: %v", err)
	}
}

func TestSelectWithCredential(t *testing.T) {
	s := NewSelector(func() string { return "sk-test" })

	_, resolved := s.Select("")
	if resolved != "openai" {
		t.Errorf("Expected openai, got %s", resolved)
	}
}

func TestSelectHonorsOpenAIHint(t *testing.T) {
	s := NewSelector(func() string { return "sk-test" })

	_, resolved := s.Select("openai")
	if resolved != "openai" {
		t.Errorf("Expected openai, got %s", resolved)
	}
}

func TestSelectUnsupportedHint(t *testing.T) {
	s := NewSelector(func() string { return "sk-test" })

	_, resolved := s.Select("some-other-vendor")
	if resolved != "fallback" {
		t.Errorf("Expected fallback for unsupported hint, got %s", resolved)
	}
}

func TestSelectCredentialChangeTakesEffect(t *testing.T) {
	key := ""
	s := NewSelector(func() string { return key })

	if _, resolved := s.Select(""); resolved != "fallback" {
		t.Fatalf("Expected fallback before key configured, got %s", resolved)
	}

	key = "sk-test"
	if _, resolved := s.Select(""); resolved != "openai" {
		t.Errorf("Expected openai after key configured, got %s", resolved)
	}

	key = ""
	if _, resolved := s.Select(""); resolved != "fallback" {
		t.Errorf("Expected fallback after key revoked, got %s", resolved)
	}
}

func TestSelectFallsBackWhenBreakerOpen(t *testing.T) {
	s := NewSelector(func() string { return "sk-test" })
	s.build = func(apiKey string) (provider.Client, error) {
		return &failingClient{}, nil
	}

	// Trip the breaker with consecutive failures.
	for i := 0; i < 3; i++ {
		client, resolved := s.Select("")
		if resolved != "openai" {
			t.Fatalf("Expected openai while breaker closed, got %s", resolved)
		}
		if _, err := client.Invoke(context.Background(), "hi"); err == nil {
			t.Fatal("Expected invoke to fail")
		}
	}

	_, resolved := s.Select("")
	if resolved != "fallback" {
		t.Errorf("Expected fallback after breaker opened, got %s", resolved)
	}
}
