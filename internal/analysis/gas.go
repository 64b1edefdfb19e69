package analysis

import (
	"math"
	"sort"
	"time"

	"stooklijn/internal/model"
)

// GasOptions converts gas meter readings into comparable heat output.
type GasOptions struct {
	CalorificValue    float64 // kWh per m³
	BoilerEfficiency  float64 // 0..1
	HotWaterThreshold float64 // °C; days at or above are hot-water-only
}

// maxPlausibleStepM3 guards against meter resets and transmission
// glitches in the cumulative series.
const maxPlausibleStepM3 = 10.0

// GasDaily turns a cumulative gas meter series into daily heating output,
// corrected for hot-water consumption.
//
// Consecutive meter diffs are converted to delivered heat through the
// calorific value and boiler efficiency and summed per day. When at least
// three days sit at or above the hot-water threshold, their median
// consumption is treated as the daily hot-water baseline and subtracted
// from every day; heating demand is what remains. Without enough warm
// days the full consumption counts as heating.
func GasDaily(meter []Reading, temps []Reading, opts GasOptions) []model.DayData {
	if len(meter) < 2 {
		return nil
	}

	// Per-day m³ from consecutive diffs of the cumulative counter.
	dayM3 := make(map[time.Time]float64)
	for i := 1; i < len(meter); i++ {
		d := meter[i].Value - meter[i-1].Value
		if d < 0 || d >= maxPlausibleStepM3 {
			continue
		}
		day := model.Day(meter[i].Time)
		dayM3[day] += d
	}
	if len(dayM3) == 0 {
		return nil
	}

	// Daily mean outdoor temperature.
	type tacc struct {
		sum float64
		n   int
	}
	dayTemp := make(map[time.Time]*tacc)
	for _, r := range temps {
		day := model.Day(r.Time)
		a, ok := dayTemp[day]
		if !ok {
			a = &tacc{}
			dayTemp[day] = a
		}
		a.sum += r.Value
		a.n++
	}

	days := make([]time.Time, 0, len(dayM3))
	for day := range dayM3 {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	meanTemp := func(day time.Time) float64 {
		if a, ok := dayTemp[day]; ok && a.n > 0 {
			return a.sum / float64(a.n)
		}
		return math.NaN()
	}

	// Hot-water baseline from warm days.
	var warmM3 []float64
	for _, day := range days {
		if t := meanTemp(day); !math.IsNaN(t) && t >= opts.HotWaterThreshold {
			warmM3 = append(warmM3, dayM3[day])
		}
	}
	hotWaterM3 := 0.0
	if len(warmM3) >= 3 {
		hotWaterM3 = median(warmM3)
	}

	kWhPerM3 := opts.CalorificValue * opts.BoilerEfficiency

	out := make([]model.DayData, 0, len(days))
	for _, day := range days {
		heatingM3 := math.Max(0, dayM3[day]-hotWaterM3)
		heatKWh := heatingM3 * kWhPerM3
		out = append(out, model.DayData{
			Date:        day,
			Source:      model.SourceRecorder,
			MeanTemp:    meanTemp(day),
			TotalHeat:   heatKWh * 1000,
			HeatPerHour: heatKWh * 1000 / 24,
		})
	}
	return out
}
