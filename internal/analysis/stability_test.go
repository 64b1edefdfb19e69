package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stooklijn/internal/model"
)

func hourSeries(powers []float64) []model.HourlySample {
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	out := make([]model.HourlySample, len(powers))
	for i, p := range powers {
		out[i] = model.HourlySample{Time: base.Add(time.Duration(i) * time.Hour), Temperature: -2, Power: p}
	}
	return out
}

func TestFilterStableDropsIdleHours(t *testing.T) {
	hours := hourSeries([]float64{800, 0, 3000, 3000, 3000, 1200})

	res := FilterStable(hours, 2500)
	require.Equal(t, 3, res.RemovedThreshold)
	require.Equal(t, 0, res.RemovedVariance)
	require.Len(t, res.Stable, 3)
}

func TestFilterStableDropsVolatileNeighborhood(t *testing.T) {
	// The 4500 W spike clears the power threshold but inflates the
	// local variance for itself and both neighbors.
	hours := hourSeries([]float64{3000, 3000, 3000, 4500, 3000, 3000, 3000, 1000})

	res := FilterStable(hours, 2500)
	require.Equal(t, 1, res.RemovedThreshold)
	require.Equal(t, 3, res.RemovedVariance)
	require.Len(t, res.Stable, 4)
	for _, h := range res.Stable {
		require.Equal(t, 3000.0, h.Power)
	}
}

func TestFilterStableEmptyInput(t *testing.T) {
	res := FilterStable(nil, 2500)
	require.Empty(t, res.Stable)
	require.Zero(t, res.RemovedThreshold)
	require.Zero(t, res.RemovedVariance)
}
