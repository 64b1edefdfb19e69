// Package analysis implements the curve fitting: stability filtering,
// piecewise knee detection, stooklijn estimation, heat-loss regression,
// and the gas-era comparison.
package analysis

import (
	"math"
	"sort"
)

// Sample is one (outdoor temperature, heat-pump power) observation,
// stripped of its timestamp. All fits operate on these.
type Sample struct {
	Temp  float64
	Power float64
}

// olsFit fits power = slope*temp + intercept by ordinary least squares.
// ok is false when fewer than two samples remain or all temperatures
// coincide.
func olsFit(samples []Sample) (slope, intercept float64, ok bool) {
	n := float64(len(samples))
	if len(samples) < 2 {
		return 0, 0, false
	}

	var sumX, sumY float64
	for _, s := range samples {
		sumX += s.Temp
		sumY += s.Power
	}
	meanX := sumX / n
	meanY := sumY / n

	var sxx, sxy float64
	for _, s := range samples {
		dx := s.Temp - meanX
		sxx += dx * dx
		sxy += dx * (s.Power - meanY)
	}
	if sxx == 0 {
		return 0, 0, false
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX
	return slope, intercept, true
}

// residualSS returns the sum of squared residuals against a line.
func residualSS(samples []Sample, slope, intercept float64) float64 {
	var ss float64
	for _, s := range samples {
		r := s.Power - (slope*s.Temp + intercept)
		ss += r * r
	}
	return ss
}

// rSquared returns the coefficient of determination for a line, or 0
// when the data has no variance to explain.
func rSquared(samples []Sample, slope, intercept float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var meanY float64
	for _, s := range samples {
		meanY += s.Power
	}
	meanY /= float64(len(samples))

	var ssTot float64
	for _, s := range samples {
		d := s.Power - meanY
		ssTot += d * d
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - residualSS(samples, slope, intercept)/ssTot
}

// meanStd returns the mean and sample standard deviation of values.
// The deviation is 0 for fewer than two values.
func meanStd(values []float64) (mean, std float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= n
	if n < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / (n - 1))
}

// median returns the middle value, averaging the two middles for even
// counts. The input slice is not modified.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
