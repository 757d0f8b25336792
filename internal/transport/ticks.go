package transport

import (
	"errors"
	"math"

	"github.com/saiputravu/matchd/internal/common"
)

// TicksPerUnit is the fixed-point scale used to convert the wire's float64
// price into common.Ticks: 4 decimal places, finer than the 2-decimal prices
// the original Python producer generates (round(random.uniform(90,110), 2)),
// so those convert exactly.
const TicksPerUnit = 1e4

// ErrInvalidPrice is returned when a wire price is not finite and positive.
var ErrInvalidPrice = errors.New("transport: price must be finite and positive")

// PriceToTicks converts a wire float64 price into common.Ticks, rejecting
// non-finite or non-positive values before the book ever sees them
// (spec.md §4.2 edge cases).
func PriceToTicks(price float64) (common.Ticks, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, ErrInvalidPrice
	}
	return common.Ticks(math.Round(price * TicksPerUnit)), nil
}

// TicksToPrice converts back to the wire's float64 representation.
func TicksToPrice(t common.Ticks) float64 {
	return float64(t) / TicksPerUnit
}
