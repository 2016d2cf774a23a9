package calculator

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

// EstimateQuartiles computes p25, p50 and p75 of each metric over all
// customers of the run.
func EstimateQuartiles(customers []models.CustomerMetrics) (models.QuartileBoundaries, error) {
	if len(customers) == 0 {
		return nil, eris.Wrap(ErrEmptyInput, "calculator: estimate quartiles")
	}

	out := make(models.QuartileBoundaries, len(models.Metrics))
	values := make([]float64, len(customers))
	for _, m := range models.Metrics {
		for i, c := range customers {
			values[i] = c.Value(m)
		}
		sort.Float64s(values)
		out[m] = models.Quartiles{
			P25: Percentile(values, 0.25),
			P50: Percentile(values, 0.50),
			P75: Percentile(values, 0.75),
		}
	}
	return out, nil
}

// Percentile returns the p-th quantile (0 <= p <= 1) of sorted values by
// linear interpolation between the two closest ranks, index = p × (n−1).
// sorted must be non-empty and ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	v := sorted[lo] + (sorted[hi]-sorted[lo])*frac
	// keep rounding from stepping past the upper rank
	return math.Min(math.Max(v, sorted[lo]), sorted[hi])
}
