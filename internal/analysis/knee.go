package analysis

import (
	"errors"
	"fmt"
	"math"

	"stooklijn/internal/model"
)

// ErrDetectionFailed is the umbrella error for a knee detection attempt
// that produced no usable result; callers advance the fallback chain on
// it rather than aborting the run.
var ErrDetectionFailed = errors.New("analysis: knee detection failed")

var (
	// ErrInsufficientData: too few samples to even attempt a fit.
	ErrInsufficientData = fmt.Errorf("%w: insufficient samples", ErrDetectionFailed)
	// ErrFitRejected: every grid candidate violated the physical
	// constraints or lacked points on one side.
	ErrFitRejected = fmt.Errorf("%w: no physically valid candidate", ErrDetectionFailed)
)

// GridOptions bounds the knee search.
type GridOptions struct {
	MinTemp    float64 // coldest candidate knee, °C
	MaxTemp    float64 // warmest candidate knee, °C
	Step       float64 // grid spacing, °C
	MinSegment int     // minimum points per side for a candidate
	MinSamples int     // minimum points to attempt detection at all
}

// DefaultGrid returns the standard search grid.
func DefaultGrid() GridOptions {
	return GridOptions{
		MinTemp:    -4.0,
		MaxTemp:    4.0,
		Step:       0.25,
		MinSegment: 5,
		MinSamples: 10,
	}
}

// candidate is one evaluated knee split. Discarded except for the winner.
type candidate struct {
	kneeTemp                 float64
	coldSlope, coldIntercept float64
	warmSlope, warmIntercept float64
	mse                      float64
	coldCount, warmCount     int
}

// DetectKnee finds the knee temperature by exhaustive grid search.
//
// Every candidate knee on the grid is evaluated: samples are split into a
// cold side (temp <= k) and a warm side (temp > k), each side gets an OLS
// line, and the candidate is scored by squared residuals normalized over
// the TOTAL point count, so a tiny cold segment cannot win on its own
// minuscule error. Candidates are rejected when the warm slope is
// non-negative (power must fall as it warms in the modulating regime) or
// when the cold side is more than 75% as steep as the warm side (that
// shape is a straight line, not a knee).
//
// Grid search, not an iterative optimizer: the objective has several
// local minima and a continuous solver lands on a different one depending
// on its starting point, which made detected knees jump unexplainably
// between runs. Exhaustive evaluation is slower and fully reproducible.
func DetectKnee(samples []Sample, opts GridOptions) (model.PiecewiseFit, error) {
	var zero model.PiecewiseFit

	if opts.MinSegment < 2 {
		opts.MinSegment = 2
	}
	if len(samples) < opts.MinSamples || len(samples) < 2*opts.MinSegment {
		return zero, fmt.Errorf("%w (%d points)", ErrInsufficientData, len(samples))
	}

	var best *candidate

	steps := int(math.Round((opts.MaxTemp - opts.MinTemp) / opts.Step))
	for i := 0; i <= steps; i++ {
		k := opts.MinTemp + float64(i)*opts.Step

		var cold, warm []Sample
		for _, s := range samples {
			if s.Temp <= k {
				cold = append(cold, s)
			} else {
				warm = append(warm, s)
			}
		}
		if len(cold) < opts.MinSegment || len(warm) < opts.MinSegment {
			continue
		}

		coldSlope, coldIntercept, ok := olsFit(cold)
		if !ok {
			continue
		}
		warmSlope, warmIntercept, ok := olsFit(warm)
		if !ok {
			continue
		}

		if warmSlope >= 0 {
			continue
		}
		if math.Abs(coldSlope) > 0.75*math.Abs(warmSlope) {
			continue
		}

		mse := (residualSS(cold, coldSlope, coldIntercept) +
			residualSS(warm, warmSlope, warmIntercept)) /
			float64(len(cold)+len(warm))

		// Strict < keeps the first (coldest) candidate on exact ties,
		// which makes the tie-break deterministic.
		if best == nil || mse < best.mse {
			best = &candidate{
				kneeTemp:      k,
				coldSlope:     coldSlope,
				coldIntercept: coldIntercept,
				warmSlope:     warmSlope,
				warmIntercept: warmIntercept,
				mse:           mse,
				coldCount:     len(cold),
				warmCount:     len(warm),
			}
		}
	}

	if best == nil {
		return zero, ErrFitRejected
	}

	return model.PiecewiseFit{
		KneeTemp:      best.kneeTemp,
		KneePower:     best.warmSlope*best.kneeTemp + best.warmIntercept,
		ColdSlope:     best.coldSlope,
		ColdIntercept: best.coldIntercept,
		WarmSlope:     best.warmSlope,
		WarmIntercept: best.warmIntercept,
		MSE:           best.mse,
		ColdCount:     best.coldCount,
		WarmCount:     best.warmCount,
	}, nil
}
