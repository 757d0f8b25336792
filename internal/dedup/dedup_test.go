package dedup_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saiputravu/matchd/internal/dedup"
)

func TestSeenOrRecord_FirstSeenThenDuplicate(t *testing.T) {
	d := dedup.New(100)
	assert.False(t, d.SeenOrRecord("AAPL", "c1"))
	assert.True(t, d.SeenOrRecord("AAPL", "c1"))
}

func TestSeenOrRecord_EmptyIDNeverRecorded(t *testing.T) {
	d := dedup.New(100)
	assert.False(t, d.SeenOrRecord("AAPL", ""))
	assert.False(t, d.SeenOrRecord("AAPL", ""))
}

func TestSeenOrRecord_SeparatePerSymbol(t *testing.T) {
	d := dedup.New(100)
	assert.False(t, d.SeenOrRecord("AAPL", "c1"))
	assert.False(t, d.SeenOrRecord("MSFT", "c1"))
}

func TestSeenOrRecord_EvictsOldestAtCapacity(t *testing.T) {
	d := dedup.New(3)
	for i := 1; i <= 3; i++ {
		assert.False(t, d.SeenOrRecord("AAPL", strconv.Itoa(i)))
	}
	// Capacity 3 full with {1,2,3}; pushing 4 evicts 1.
	assert.False(t, d.SeenOrRecord("AAPL", "4"))
	assert.False(t, d.SeenOrRecord("AAPL", "1"), "1 fell outside the capacity window and may be reprocessed")
	assert.True(t, d.SeenOrRecord("AAPL", "4"))
}
