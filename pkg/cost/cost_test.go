package cost

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateTable(t *testing.T) {
	table := NewRateTable(map[string]Rate{
		"gpt-4o":      {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		"gpt-4o-mini": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	})

	t.Run("exact match", func(t *testing.T) {
		rate, ok := table.Lookup("gpt-4o-mini")
		require.True(t, ok)
		assert.Equal(t, 0.15, rate.InputPerMTok)
	})

	t.Run("longest prefix wins", func(t *testing.T) {
		rate, ok := table.Lookup("gpt-4o-mini-2024-07-18")
		require.True(t, ok)
		assert.Equal(t, 0.15, rate.InputPerMTok)

		rate, ok = table.Lookup("gpt-4o-2024-08-06")
		require.True(t, ok)
		assert.Equal(t, 2.50, rate.InputPerMTok)
	})

	t.Run("unknown model prices at zero", func(t *testing.T) {
		_, ok := table.Lookup("mystery-model")
		assert.False(t, ok)
		assert.Equal(t, 0.0, table.Price("mystery-model", 1000, 1000))
	})

	t.Run("price is per million tokens", func(t *testing.T) {
		usd := table.Price("gpt-4o", 1_000_000, 500_000)
		assert.InDelta(t, 2.50+5.00, usd, 1e-9)
	})
}

func TestLedger(t *testing.T) {
	newLedger := func() *Ledger {
		return NewLedger(NewRateTable(map[string]Rate{
			"gpt-4o": {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		}))
	}

	t.Run("record accumulates per session and aggregate", func(t *testing.T) {
		l := newLedger()
		l.Record("s1", "gpt-4o", 1000, 500)
		l.Record("s1", "gpt-4o", 1000, 500)
		l.Record("s2", "gpt-4o", 2000, 0)

		s1 := l.SessionSpend("s1")
		assert.Equal(t, 2000, s1.InputTokens)
		assert.Equal(t, 1000, s1.OutputTokens)

		total := l.Total()
		assert.Equal(t, 4000, total.InputTokens)
		assert.InDelta(t, s1.USD+l.SessionSpend("s2").USD, total.USD, 1e-9)
	})

	t.Run("totals never decrease", func(t *testing.T) {
		l := newLedger()
		prev := 0.0
		for i := 0; i < 10; i++ {
			l.Record("s1", "gpt-4o", 100, 100)
			cur := l.SessionSpend("s1").USD
			assert.GreaterOrEqual(t, cur, prev)
			prev = cur
		}
	})

	t.Run("exceeded respects ceiling", func(t *testing.T) {
		l := newLedger()
		assert.False(t, l.Exceeded("s1", 1.0))

		// 1M input tokens = $2.50
		l.Record("s1", "gpt-4o", 1_000_000, 0)
		assert.True(t, l.Exceeded("s1", 1.0))
		assert.False(t, l.Exceeded("s1", 10.0))
	})

	t.Run("zero ceiling means unlimited", func(t *testing.T) {
		l := newLedger()
		l.Record("s1", "gpt-4o", 1_000_000, 1_000_000)
		assert.False(t, l.Exceeded("s1", 0))
		assert.False(t, l.Exceeded("s1", -1))
	})

	t.Run("concurrent records stay consistent", func(t *testing.T) {
		l := newLedger()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s%d", i%2)
				for j := 0; j < 100; j++ {
					l.Record(id, "gpt-4o", 10, 10)
				}
			}(i)
		}
		wg.Wait()

		total := l.Total()
		assert.Equal(t, 8000, total.InputTokens)
		assert.Equal(t, 8000, total.OutputTokens)
	})
}
