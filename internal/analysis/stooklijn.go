package analysis

import (
	"fmt"
	"math"

	"stooklijn/internal/model"
)

// EstimateStooklijn fits the current heating curve right of the knee from
// minute-resolution samples: continuous operation at or above minPower,
// temperatures at or above the knee, one OLS line of power vs temperature.
//
// Minute resolution is required here. Hourly averages blend partial-
// capacity minutes into the series and flatten the slope.
func EstimateStooklijn(minutes []model.MinuteSample, kneeTemp, minPower float64) (model.LinearFit, error) {
	var fit model.LinearFit

	var samples []Sample
	for _, m := range minutes {
		if m.Power >= minPower && m.Temperature >= kneeTemp {
			samples = append(samples, Sample{Temp: m.Temperature, Power: m.Power})
		}
	}
	if len(samples) < 2 {
		return fit, fmt.Errorf("%w (%d points right of knee)", ErrInsufficientData, len(samples))
	}

	slope, intercept, ok := olsFit(samples)
	if !ok {
		return fit, fmt.Errorf("%w (degenerate temperatures right of knee)", ErrInsufficientData)
	}

	fit.Slope = slope
	fit.Intercept = intercept
	fit.R2 = rSquared(samples, slope, intercept)
	fit.Points = len(samples)
	return fit, nil
}

// LineFromPoints returns the line through two configured curve points,
// the way the installed stooklijn is expressed in the heat pump's
// settings. Not a fit, so R2 and Points stay zero.
func LineFromPoints(t1, p1, t2, p2 float64) (model.LinearFit, bool) {
	if t1 == t2 {
		return model.LinearFit{}, false
	}
	slope := (p2 - p1) / (t2 - t1)
	return model.LinearFit{Slope: slope, Intercept: p1 - slope*t1}, true
}

const (
	envelopeBinSize   = 0.5  // °C
	envelopeKeepRatio = 0.90 // keep points >= 90% of their bin max
	envelopeZScore    = 2.5
)

// FreezingPerformance characterizes maximum capacity below the knee with
// a max-envelope fit on hourly samples: rough OLS to strip z-score
// outliers, then per-half-degree bins keeping only points near the bin
// maximum, then a final OLS on the envelope. The envelope matters because
// sub-knee hours mix full-capacity operation with recovery from defrosts;
// only the top of the cloud reflects what the machine can actually do.
func FreezingPerformance(hours []model.HourlySample, kneeTemp float64) (model.LinearFit, error) {
	var fit model.LinearFit

	var samples []Sample
	for _, h := range hours {
		if h.Power > 100 && h.Temperature < kneeTemp {
			samples = append(samples, Sample{Temp: h.Temperature, Power: h.Power})
		}
	}
	if len(samples) <= 5 {
		return fit, fmt.Errorf("%w (%d points below knee)", ErrInsufficientData, len(samples))
	}

	// Rough fit for outlier removal.
	roughSlope, roughIntercept, ok := olsFit(samples)
	if !ok {
		return fit, fmt.Errorf("%w (degenerate temperatures below knee)", ErrInsufficientData)
	}
	residuals := make([]float64, len(samples))
	for i, s := range samples {
		residuals[i] = s.Power - (roughSlope*s.Temp + roughIntercept)
	}
	_, std := meanStd(residuals)

	clean := samples
	if std > 0 {
		clean = clean[:0:0]
		for i, s := range samples {
			if math.Abs(residuals[i]) < envelopeZScore*std {
				clean = append(clean, s)
			}
		}
	}

	// Max per temperature bin.
	binMax := make(map[float64]float64)
	for _, s := range clean {
		bin := math.Round(s.Temp/envelopeBinSize) * envelopeBinSize
		if s.Power > binMax[bin] {
			binMax[bin] = s.Power
		}
	}

	var envelope []Sample
	for _, s := range clean {
		bin := math.Round(s.Temp/envelopeBinSize) * envelopeBinSize
		if s.Power >= binMax[bin]*envelopeKeepRatio {
			envelope = append(envelope, s)
		}
	}
	if len(envelope) < 2 {
		return fit, fmt.Errorf("%w (envelope collapsed to %d points)", ErrInsufficientData, len(envelope))
	}

	slope, intercept, ok := olsFit(envelope)
	if !ok {
		return fit, fmt.Errorf("%w (degenerate envelope)", ErrInsufficientData)
	}

	fit.Slope = slope
	fit.Intercept = intercept
	fit.R2 = rSquared(envelope, slope, intercept)
	fit.Points = len(envelope)
	return fit, nil
}
