package admin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiputravu/matchd/internal/registry"
)

func TestDispatch_TOBUnknownSymbolReturnsErrorWithoutCreatingEngine(t *testing.T) {
	reg := registry.New()
	defer reg.StopAll()
	s := New(":0", reg)

	resp := s.dispatch("TOB AAPL")

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.Contains(t, out, "error")

	_, ok := reg.Lookup("AAPL")
	assert.False(t, ok, "a TOB query must never create an engine as a side effect")
}

func TestDispatch_TOBReturnsBookPayloadForLiveEngine(t *testing.T) {
	reg := registry.New()
	defer reg.StopAll()

	eng := reg.GetOrCreate("AAPL")
	_, err := eng.SubmitLimit(0, 1000000, 5, "")
	require.NoError(t, err)

	s := New(":0", reg)
	resp := s.dispatch("TOB AAPL")

	// best_bid is the literal [price, qty] array spec.md §6 specifies.
	var payload struct {
		BestBid []any `json:"best_bid"`
	}
	require.NoError(t, json.Unmarshal(resp, &payload))
	require.Len(t, payload.BestBid, 2)
	require.NotNil(t, payload.BestBid[0], "price must not be null for a live best bid")
	assert.Equal(t, float64(5), payload.BestBid[1])
}

func TestDispatch_SnapUnknownSymbolDoesNotCreateEngine(t *testing.T) {
	reg := registry.New()
	defer reg.StopAll()
	s := New(":0", reg)

	_ = s.dispatch("SNAP MSFT 5")

	assert.Empty(t, reg.Symbols())
}

func TestDispatch_RejectsMalformedRequests(t *testing.T) {
	reg := registry.New()
	defer reg.StopAll()
	s := New(":0", reg)

	for _, line := range []string{"", "BOGUS", "TOB", "SNAP"} {
		resp := s.dispatch(line)
		var out map[string]string
		require.NoError(t, json.Unmarshal(resp, &out))
		assert.Contains(t, out, "error")
	}
}

