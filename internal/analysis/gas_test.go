package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stooklijn/internal/model"
)

func gasOpts() GasOptions {
	return GasOptions{
		CalorificValue:    9.77,
		BoilerEfficiency:  0.90,
		HotWaterThreshold: 18.0,
	}
}

func TestGasDailySubtractsHotWaterBaseline(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Cumulative meter: three warm days at 0.5 m³/day establish the
	// hot-water baseline, then two cold days at 3.0 m³/day.
	meter := []Reading{
		{Time: base, Value: 100.0},
		{Time: base.AddDate(0, 0, 1), Value: 100.5},
		{Time: base.AddDate(0, 0, 2), Value: 101.0},
		{Time: base.AddDate(0, 0, 3), Value: 101.5},
		{Time: base.AddDate(0, 0, 4), Value: 104.5},
		{Time: base.AddDate(0, 0, 5), Value: 107.5},
	}
	var temps []Reading
	for i := 1; i <= 3; i++ {
		temps = append(temps, Reading{Time: base.AddDate(0, 0, i), Value: 20})
	}
	for i := 4; i <= 5; i++ {
		temps = append(temps, Reading{Time: base.AddDate(0, 0, i), Value: 2})
	}

	days := GasDaily(meter, temps, gasOpts())
	require.Len(t, days, 5)

	// Warm days net out to zero heating demand.
	require.InDelta(t, 0, days[0].TotalHeat, 1e-6)

	// Cold day: (3.0 - 0.5) m³ * 9.77 kWh/m³ * 0.90 = 21.9825 kWh.
	cold := days[3]
	require.Equal(t, model.Day(base.AddDate(0, 0, 4)), cold.Date)
	require.InDelta(t, 2.0, cold.MeanTemp, 1e-9)
	require.InDelta(t, 21982.5, cold.TotalHeat, 1e-6)
	require.InDelta(t, 21982.5/24, cold.HeatPerHour, 1e-6)
}

func TestGasDailySkipsResetsAndSpikes(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	meter := []Reading{
		{Time: base, Value: 500.0},
		{Time: base.AddDate(0, 0, 1), Value: 0.0},  // meter reset
		{Time: base.AddDate(0, 0, 2), Value: 2.0},
		{Time: base.AddDate(0, 0, 3), Value: 80.0}, // implausible jump
	}

	days := GasDaily(meter, nil, gasOpts())
	require.Len(t, days, 1)
	require.Equal(t, model.Day(base.AddDate(0, 0, 2)), days[0].Date)
	// No warm days, so the full 2.0 m³ counts as heating.
	require.InDelta(t, 2.0*9.77*0.90*1000, days[0].TotalHeat, 1e-6)
}

func TestGasDailyNeedsTwoReadings(t *testing.T) {
	require.Nil(t, GasDaily([]Reading{{Value: 1}}, nil, gasOpts()))
}
