// Package pricing maps provider usage metadata to monetary amounts. Pure and
// deterministic: no I/O, no hidden state.
package pricing

import (
	"fmt"

	"github.com/vnmchuo/agent-ledger/internal/provider"
)

// Amount is a non-negative USD amount held as an integer count of
// ten-thousandths of a dollar (4 fixed fractional digits). Billing math never
// touches binary floating point.
type Amount int64

// Scale is the number of Amount units in one USD.
const Scale = 10000

func (a Amount) String() string {
	return fmt.Sprintf("%d.%04d", int64(a)/Scale, int64(a)%Scale)
}

// MarshalJSON renders the amount as a plain decimal number with four
// fractional digits, e.g. 0.0015.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// Rate prices one (provider, model) pair. Per-1K prices follow the usual
// vendor quoting convention.
type Rate struct {
	PromptPer1K     Amount
	CompletionPer1K Amount
	PerToolCall     Amount
}

type rateKey struct {
	provider string
	model    string
}

// Table is the rate table keyed by (provider, model). Every table carries a
// default rate: unknown pairs price at the default and never fail a run.
type Table struct {
	rates    map[rateKey]Rate
	fallback Rate
}

func NewTable(defaultRate Rate) *Table {
	return &Table{
		rates:    make(map[rateKey]Rate),
		fallback: defaultRate,
	}
}

func (t *Table) Add(providerName, model string, r Rate) {
	t.rates[rateKey{provider: providerName, model: model}] = r
}

// Lookup returns the rate for a pair, falling back to the default entry.
func (t *Table) Lookup(providerName, model string) Rate {
	if r, ok := t.rates[rateKey{provider: providerName, model: model}]; ok {
		return r
	}
	return t.fallback
}

// Compute derives the cost of a run from its usage. It fails only on an
// invalid usage shape (negative counts); an unknown (provider, model) pair is
// not an error.
func (t *Table) Compute(u provider.Usage) (Amount, error) {
	if u.PromptUnits < 0 || u.CompletionUnits < 0 || u.ToolInvocations < 0 {
		return 0, fmt.Errorf("pricing: negative usage counts (prompt=%d completion=%d tools=%d)",
			u.PromptUnits, u.CompletionUnits, u.ToolInvocations)
	}

	r := t.Lookup(u.Provider, u.Model)
	total := per1k(u.PromptUnits, r.PromptPer1K) +
		per1k(u.CompletionUnits, r.CompletionPer1K) +
		Amount(u.ToolInvocations)*r.PerToolCall
	return total, nil
}

// per1k scales a per-1K-unit rate to a unit count, rounding half up.
func per1k(units int, rate Amount) Amount {
	return Amount((int64(units)*int64(rate) + 500) / 1000)
}

// DefaultTable is the shipped rate configuration. The default entry prices
// any unknown (provider, model) pair.
func DefaultTable() *Table {
	t := NewTable(Rate{PromptPer1K: 10, CompletionPer1K: 30}) // $0.0010 / $0.0030 per 1K
	t.Add("openai", "gpt-4o-mini", Rate{PromptPer1K: 2, CompletionPer1K: 6})
	t.Add("openai", "gpt-4o", Rate{PromptPer1K: 25, CompletionPer1K: 100})
	t.Add("fallback", "fallback/echo", Rate{})
	return t
}
