package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retail-analytics/rfm-segments/pkg/models"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{1, 4},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Percentile(sorted, tt.p), 1e-9, "p=%v", tt.p)
	}
}

func TestPercentile_SingleValue(t *testing.T) {
	assert.Equal(t, 42.0, Percentile([]float64{42}, 0.25))
	assert.Equal(t, 42.0, Percentile([]float64{42}, 0.75))
}

func TestEstimateQuartiles(t *testing.T) {
	customers := []models.CustomerMetrics{
		{CustomerID: "a", RecencyDays: 100, Frequency: 1, Monetary: 100},
		{CustomerID: "b", RecencyDays: 50, Frequency: 2, Monetary: 200},
		{CustomerID: "c", RecencyDays: 10, Frequency: 3, Monetary: 300},
		{CustomerID: "d", RecencyDays: 1, Frequency: 4, Monetary: 400},
	}

	b, err := EstimateQuartiles(customers)
	require.NoError(t, err)
	require.Len(t, b, 3)

	assert.InDelta(t, 7.75, b[models.Recency].P25, 1e-9)
	assert.InDelta(t, 30.0, b[models.Recency].P50, 1e-9)
	assert.InDelta(t, 62.5, b[models.Recency].P75, 1e-9)

	assert.InDelta(t, 1.75, b[models.Frequency].P25, 1e-9)
	assert.InDelta(t, 2.5, b[models.Frequency].P50, 1e-9)
	assert.InDelta(t, 3.25, b[models.Frequency].P75, 1e-9)

	assert.InDelta(t, 175.0, b[models.Monetary].P25, 1e-9)
	assert.InDelta(t, 250.0, b[models.Monetary].P50, 1e-9)
	assert.InDelta(t, 325.0, b[models.Monetary].P75, 1e-9)

	// input order untouched
	assert.Equal(t, "a", customers[0].CustomerID)
	assert.Equal(t, 100, customers[0].RecencyDays)
}

func TestEstimateQuartiles_Ties(t *testing.T) {
	customers := []models.CustomerMetrics{
		{CustomerID: "a", RecencyDays: 5, Frequency: 1, Monetary: 9.5},
		{CustomerID: "b", RecencyDays: 5, Frequency: 1, Monetary: 9.5},
		{CustomerID: "c", RecencyDays: 5, Frequency: 1, Monetary: 9.5},
	}

	b, err := EstimateQuartiles(customers)
	require.NoError(t, err)
	assert.Equal(t, models.Quartiles{P25: 5, P50: 5, P75: 5}, b[models.Recency])
	assert.Equal(t, models.Quartiles{P25: 1, P50: 1, P75: 1}, b[models.Frequency])
	assert.Equal(t, models.Quartiles{P25: 9.5, P50: 9.5, P75: 9.5}, b[models.Monetary])
}

func TestEstimateQuartiles_Empty(t *testing.T) {
	b, err := EstimateQuartiles(nil)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
