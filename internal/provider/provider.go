package provider

import (
	"context"
	"errors"
	"fmt"
)

// Usage describes what a client consumed while producing its output.
type Usage struct {
	PromptUnits     int
	CompletionUnits int
	ToolInvocations int
	Provider        string
	Model           string
}

// ToolCall is one discrete unit of work the provider performed while
// producing its output.
type ToolCall struct {
	Name          string
	InputSummary  string
	OutputSummary string
	LatencyMs     int64
}

// Result is the outcome of a successful invocation.
type Result struct {
	ModelOutput string
	ModelID     string
	Usage       Usage
	ToolTrace   []ToolCall
}

type ErrorKind string

const (
	KindUnavailable       ErrorKind = "unavailable"
	KindTimeout           ErrorKind = "timeout"
	KindInvalidCredential ErrorKind = "invalid_credential"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUnknown           ErrorKind = "unknown"
)

// Error classifies an invocation failure. The executor converts any Error
// into a failed terminal run; it is never surfaced raw to the caller.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider: %s", e.Kind)
	}
	return fmt.Sprintf("provider: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the error kind, defaulting to KindUnknown for errors that
// did not originate from a client.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Client invokes an AI provider with a prompt. Invoke must honor ctx
// cancellation; a deadline expiry surfaces as an Error with KindTimeout.
type Client interface {
	Invoke(ctx context.Context, prompt string) (*Result, error)
	Name() string
}
