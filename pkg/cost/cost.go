package cost

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/internal/observability"
)

// Rate is the price of one model in USD per million tokens.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// RateTable maps model names to rates. Lookup falls back to the longest
// registered prefix so dated model releases inherit their family rate.
type RateTable struct {
	rates map[string]Rate
}

// NewRateTable creates a table from the given model rates.
func NewRateTable(rates map[string]Rate) *RateTable {
	copied := make(map[string]Rate, len(rates))
	for model, rate := range rates {
		copied[model] = rate
	}
	return &RateTable{rates: copied}
}

// DefaultRateTable covers the models the runtime ships configured for.
// Unknown models price at zero, so spend tracking degrades to token
// counting rather than blocking execution.
func DefaultRateTable() *RateTable {
	return NewRateTable(map[string]Rate{
		"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		"claude-3-opus":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
		"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
		"o1":                {InputPerMTok: 15.00, OutputPerMTok: 60.00},
	})
}

// Lookup returns the rate for a model, preferring an exact match and
// falling back to the longest prefix match.
func (t *RateTable) Lookup(model string) (Rate, bool) {
	if rate, ok := t.rates[model]; ok {
		return rate, true
	}

	bestLen := 0
	var best Rate
	for prefix, rate := range t.rates {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = rate
		}
	}
	return best, bestLen > 0
}

// Price computes the USD cost of one completion's token usage.
func (t *RateTable) Price(model string, inputTokens, outputTokens int) float64 {
	rate, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*rate.InputPerMTok +
		float64(outputTokens)/1e6*rate.OutputPerMTok
}

// Spend is an accumulated usage total.
type Spend struct {
	InputTokens  int
	OutputTokens int
	USD          float64
}

// Ledger records model spend per session and in aggregate. It is the only
// state shared across session goroutines, so it carries its own lock.
// Totals only ever grow.
type Ledger struct {
	rates *RateTable

	mu       sync.Mutex
	sessions map[string]Spend
	total    Spend
}

// NewLedger creates an empty ledger priced by the given table.
func NewLedger(rates *RateTable) *Ledger {
	return &Ledger{
		rates:    rates,
		sessions: make(map[string]Spend),
	}
}

// Record prices one completion and adds it to the session and aggregate
// totals. It returns the USD cost of this completion.
func (l *Ledger) Record(sessionID, model string, inputTokens, outputTokens int) float64 {
	usd := l.rates.Price(model, inputTokens, outputTokens)

	l.mu.Lock()
	spend := l.sessions[sessionID]
	spend.InputTokens += inputTokens
	spend.OutputTokens += outputTokens
	spend.USD += usd
	l.sessions[sessionID] = spend

	l.total.InputTokens += inputTokens
	l.total.OutputTokens += outputTokens
	l.total.USD += usd
	l.mu.Unlock()

	observability.AddTokens(inputTokens, outputTokens)
	observability.AddCost(usd)

	log.Debug().
		Str("session", sessionID).
		Str("model", model).
		Int("input_tokens", inputTokens).
		Int("output_tokens", outputTokens).
		Float64("usd", usd).
		Msg("Usage recorded")

	return usd
}

// SessionSpend returns the accumulated spend of one session.
func (l *Ledger) SessionSpend(sessionID string) Spend {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[sessionID]
}

// Total returns the aggregate spend across all sessions.
func (l *Ledger) Total() Spend {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// SessionUSD returns a session's accumulated spend in USD.
func (l *Ledger) SessionUSD(sessionID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[sessionID].USD
}

// Exceeded reports whether a session's spend has reached the given ceiling.
// A zero or negative ceiling means unlimited.
func (l *Ledger) Exceeded(sessionID string, ceiling float64) bool {
	if ceiling <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[sessionID].USD >= ceiling
}
