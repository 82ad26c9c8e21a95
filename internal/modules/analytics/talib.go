package analytics

import (
	"math"

	"github.com/markcheno/go-talib"
)

// stdDev is the trailing population standard deviation over period values.
// Entries before the first full window are NaN.
func stdDev(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	// Use go-talib for the rolling window
	// Parameters: inReal, inTimePeriod, inNbDev
	std := talib.StdDev(values, period, 1.0)
	for i := range out {
		if i < period-1 || i >= len(std) {
			out[i] = math.NaN()
			continue
		}
		out[i] = std[i]
	}
	return out
}
