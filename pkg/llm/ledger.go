package llm

import (
	"fmt"
	"sync"

	"github.com/tablesage/tablesage/pkg/apperrors"
)

// Usage is a point-in-time ledger snapshot.
type Usage struct {
	TotalTokens  int     `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	RequestCount int     `json:"request_count"`
	MaxCostUSD   float64 `json:"max_cost_usd"`
}

// CostLedger tracks cumulative LLM spend against a hard ceiling. Totals
// only grow; a request whose projected cost would cross the ceiling is
// rejected before any provider call and charges nothing.
type CostLedger struct {
	mu           sync.Mutex
	totalTokens  int
	totalCostUSD float64
	requestCount int
	maxCostUSD   float64
}

// NewCostLedger creates a ledger with the given ceiling in USD.
func NewCostLedger(maxCostUSD float64) *CostLedger {
	return &CostLedger{maxCostUSD: maxCostUSD}
}

// Reserve checks whether a request with the projected cost is admissible.
// It returns a CostExceeded error, without charging, when the current total
// plus the projection would reach the ceiling.
func (l *CostLedger) Reserve(projectedUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.totalCostUSD+projectedUSD >= l.maxCostUSD {
		return apperrors.New(apperrors.KindCostExceeded,
			fmt.Sprintf("projected cost $%.4f would exceed ceiling $%.2f (spent $%.4f)",
				projectedUSD, l.maxCostUSD, l.totalCostUSD))
	}
	return nil
}

// Charge records actual usage after a completed provider call.
func (l *CostLedger) Charge(tokens int, costUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalTokens += tokens
	l.totalCostUSD += costUSD
	l.requestCount++
}

// Snapshot returns the current totals.
func (l *CostLedger) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Usage{
		TotalTokens:  l.totalTokens,
		TotalCostUSD: l.totalCostUSD,
		RequestCount: l.requestCount,
		MaxCostUSD:   l.maxCostUSD,
	}
}
