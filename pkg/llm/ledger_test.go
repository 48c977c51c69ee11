package llm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesage/tablesage/pkg/apperrors"
)

func TestCostLedger_ChargeAccumulates(t *testing.T) {
	l := NewCostLedger(10.0)
	l.Charge(100, 0.5)
	l.Charge(200, 0.25)

	snap := l.Snapshot()
	assert.Equal(t, 300, snap.TotalTokens)
	assert.InDelta(t, 0.75, snap.TotalCostUSD, 1e-9)
	assert.Equal(t, 2, snap.RequestCount)
}

func TestCostLedger_ReserveAtCeilingRejectsWithoutCharging(t *testing.T) {
	l := NewCostLedger(1.0)
	l.Charge(1000, 0.9)

	err := l.Reserve(0.2)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindCostExceeded, apperrors.KindOf(err))

	// The rejected reservation must not move the totals.
	snap := l.Snapshot()
	assert.InDelta(t, 0.9, snap.TotalCostUSD, 1e-9)
	assert.Equal(t, 1, snap.RequestCount)
}

func TestCostLedger_ReserveExactCeilingRejects(t *testing.T) {
	l := NewCostLedger(1.0)
	l.Charge(1000, 0.5)

	// total + projected == ceiling is already over budget.
	assert.Error(t, l.Reserve(0.5))
	assert.NoError(t, l.Reserve(0.4))
}

func TestCostLedger_ConcurrentCharges(t *testing.T) {
	l := NewCostLedger(1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Charge(10, 0.01)
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, 500, snap.TotalTokens)
	assert.InDelta(t, 0.5, snap.TotalCostUSD, 1e-9)
	assert.Equal(t, 50, snap.RequestCount)
}
