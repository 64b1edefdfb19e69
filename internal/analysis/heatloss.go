package analysis

import (
	"fmt"
	"math"

	"stooklijn/internal/model"
)

// MinHeatingWatts is the minimum heat-per-hour for a day to count as a
// heating day. Summer days below it would drag every regression flat.
const MinHeatingWatts = 200

var demandTemps = []int{-10, -5, 0, 5, 10, 15}

// HeatLoss derives the building envelope from daily data: OLS of daily
// heat-per-hour against daily mean outdoor temperature over heating days.
// The negated slope is the heat-loss coefficient in W/K; the zero
// crossing is the balance point.
func HeatLoss(days []model.DayData) (*model.HeatLossResult, error) {
	var all []Sample
	var scatter []model.ScatterPoint

	for _, d := range days {
		if math.IsNaN(d.MeanTemp) || math.IsNaN(d.HeatPerHour) || math.IsInf(d.HeatPerHour, 0) {
			continue
		}
		all = append(all, Sample{Temp: d.MeanTemp, Power: d.HeatPerHour})
		p := model.ScatterPoint{
			Temp: math.Round(d.MeanTemp*10) / 10,
			Heat: math.Round(d.HeatPerHour),
		}
		if d.AverageCOP > 0 {
			cop := d.AverageCOP
			p.COP = &cop
		}
		scatter = append(scatter, p)
	}

	var heating []Sample
	for _, s := range all {
		if s.Power >= MinHeatingWatts {
			heating = append(heating, s)
		}
	}
	if len(heating) < 5 {
		return nil, fmt.Errorf("%w (%d heating days)", ErrInsufficientData, len(heating))
	}

	slope, intercept, ok := olsFit(heating)
	if !ok {
		return nil, fmt.Errorf("%w (degenerate daily temperatures)", ErrInsufficientData)
	}

	res := &model.HeatLossResult{
		Coefficient: -slope,
		Fit: model.LinearFit{
			Slope:     slope,
			Intercept: intercept,
			R2:        rSquared(heating, slope, intercept),
			Points:    len(heating),
		},
		DemandAt: make(map[int]float64, len(demandTemps)),
		Scatter:  scatter,
	}
	if slope != 0 {
		res.BalancePoint = -intercept / slope
	}
	for _, t := range demandTemps {
		res.DemandAt[t] = math.Max(0, slope*float64(t)+intercept)
	}
	return res, nil
}

// AverageCOP returns the mean COP over heating days with a meaningful
// COP, or false when no day qualifies.
func AverageCOP(days []model.DayData) (float64, bool) {
	var sum float64
	var n int
	for _, d := range days {
		if d.AverageCOP > 0 && !math.IsInf(d.AverageCOP, 0) && d.HeatPerHour >= MinHeatingWatts {
			sum += d.AverageCOP
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// COPScatter returns per-day (temperature, COP) points for heating days.
func COPScatter(days []model.DayData) []model.COPPoint {
	var out []model.COPPoint
	for _, d := range days {
		if d.AverageCOP <= 0 || math.IsInf(d.AverageCOP, 0) || math.IsNaN(d.MeanTemp) {
			continue
		}
		if d.HeatPerHour < MinHeatingWatts {
			continue
		}
		out = append(out, model.COPPoint{
			Temp: math.Round(d.MeanTemp*10) / 10,
			COP:  math.Round(d.AverageCOP*100) / 100,
		})
	}
	return out
}
