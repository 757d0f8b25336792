package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu/matchd/internal/common"
	"github.com/saiputravu/matchd/internal/registry"
)

func TestRegistry_ConcurrentGetOrCreateReturnsOneEngine(t *testing.T) {
	r := registry.New()
	defer r.StopAll()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]int{}

	wg.Add(32)
	for i := 0; i < 32; i++ {
		go func() {
			defer wg.Done()
			e := r.GetOrCreate("AAPL")
			mu.Lock()
			seen[e.Symbol]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, seen["AAPL"])
	assert.Len(t, r.Symbols(), 1)
}

func TestRegistry_LookupDoesNotCreate(t *testing.T) {
	r := registry.New()
	defer r.StopAll()

	_, ok := r.Lookup("MSFT")
	assert.False(t, ok)
	assert.Empty(t, r.Symbols())
}

func TestRegistry_EnginesAreIndependentPerSymbol(t *testing.T) {
	r := registry.New()
	defer r.StopAll()

	a := r.GetOrCreate("AAPL")
	b := r.GetOrCreate("MSFT")

	_, err := a.SubmitLimit(common.Buy, 100, 10, "u1")
	require.NoError(t, err)

	tob, err := b.TopOfBook()
	require.NoError(t, err)
	assert.False(t, tob.BidOK)
}
