package analysis

import (
	"stooklijn/internal/model"
)

// FilterResult is the surviving subset plus removal counts. The counts
// are kept for logging only, never for control flow.
type FilterResult struct {
	Stable           []model.HourlySample
	RemovedThreshold int
	RemovedVariance  int
}

// FilterStable removes unstable hours from an hourly series.
//
// Step 1 drops hours below minPower: the pump was idle or barely running.
// Step 2 drops hours whose power varies too much against their neighbors:
// over a centered 3-hour window, an hour is removed when the local
// standard deviation exceeds 20% of the local mean. A defrost cycle
// averaged into an otherwise active hour still clears the raw threshold,
// but it inflates the local variance and is caught here.
func FilterStable(hours []model.HourlySample, minPower float64) FilterResult {
	var res FilterResult

	active := make([]model.HourlySample, 0, len(hours))
	for _, h := range hours {
		if h.Power < minPower {
			res.RemovedThreshold++
			continue
		}
		active = append(active, h)
	}

	for i, h := range active {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi > len(active)-1 {
			hi = len(active) - 1
		}
		window := make([]float64, 0, 3)
		for j := lo; j <= hi; j++ {
			window = append(window, active[j].Power)
		}
		mean, std := meanStd(window)
		if mean > 0 && std > 0.20*mean {
			res.RemovedVariance++
			continue
		}
		res.Stable = append(res.Stable, h)
	}

	return res
}
