package model

import "time"

// KneeTier records which stage of the detection chain produced the knee.
type KneeTier int

const (
	// TierPrimary is a fit on minute-resolution recorder samples merged
	// with the accumulated knee store. No defrost-dilution bias.
	TierPrimary KneeTier = iota
	// TierSecondary is a fit on stability-filtered hourly API samples.
	// Known to read ~1-2 °C warm because defrosts dilute hourly averages.
	TierSecondary
	// TierFallback is the configured constant, not a fitted value.
	TierFallback
)

func (t KneeTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	default:
		return "fallback"
	}
}

// PiecewiseFit is the winning two-segment fit from the knee grid search.
type PiecewiseFit struct {
	KneeTemp      float64 `json:"knee_temp"`
	KneePower     float64 `json:"knee_power"`
	ColdSlope     float64 `json:"cold_slope"`
	ColdIntercept float64 `json:"cold_intercept"`
	WarmSlope     float64 `json:"warm_slope"`
	WarmIntercept float64 `json:"warm_intercept"`
	MSE           float64 `json:"mse"`
	ColdCount     int     `json:"cold_count"`
	WarmCount     int     `json:"warm_count"`
}

// KneeResult is the knee outcome with its provenance attached, so
// consumers can tell a fitted value from the constant fallback.
type KneeResult struct {
	Tier        KneeTier      `json:"tier"`
	Temperature float64       `json:"temperature"`
	Power       float64       `json:"power,omitempty"`
	Fit         *PiecewiseFit `json:"fit,omitempty"`
	SampleCount int           `json:"sample_count"`
}

// Fitted reports whether the knee came from an actual fit.
func (k KneeResult) Fitted() bool { return k.Tier != TierFallback }

// LinearFit is a single ordinary-least-squares line of power vs temperature.
type LinearFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	Points    int     `json:"points"`
}

// ZeroCrossing returns the temperature where the fitted line reaches zero
// power, or false when the line is flat.
func (f LinearFit) ZeroCrossing() (float64, bool) {
	if f.Slope == 0 {
		return 0, false
	}
	return -f.Intercept / f.Slope, true
}

// ScatterPoint is one daily observation for the results API.
type ScatterPoint struct {
	Temp float64  `json:"temp"`
	Heat float64  `json:"heat"`
	COP  *float64 `json:"cop,omitempty"`
}

// COPPoint is one daily COP observation.
type COPPoint struct {
	Temp float64 `json:"temp"`
	COP  float64 `json:"cop"`
}

// HeatLossResult characterizes the building envelope from daily data.
type HeatLossResult struct {
	Coefficient  float64         `json:"coefficient"`   // W/K
	BalancePoint float64         `json:"balance_point"` // °C
	Fit          LinearFit       `json:"fit"`
	DemandAt     map[int]float64 `json:"demand_at"` // °C -> W
	Scatter      []ScatterPoint  `json:"scatter"`
}

// SourceCounts records how many merged days came from each source,
// kept for observability only.
type SourceCounts struct {
	Cache        int `json:"cache"`
	API          int `json:"api"`
	RecorderOnly int `json:"recorder_only"`
}

// AnalysisResult is everything one analysis run produces. Transient:
// computed fresh each run, never persisted.
type AnalysisResult struct {
	RanAt  time.Time    `json:"ran_at"`
	Counts SourceCounts `json:"source_counts"`

	Knee KneeResult `json:"knee"`

	// Current heating curve right of the knee, from minute data.
	Stooklijn *LinearFit `json:"stooklijn,omitempty"`
	// Freezing performance left of the knee (max-envelope fit).
	FreezingFit *LinearFit `json:"freezing_fit,omitempty"`
	// Optimal curve from daily usage.
	Optimal        *LinearFit `json:"optimal,omitempty"`
	OptimalBalance *float64   `json:"optimal_balance,omitempty"`
	// Installed curve derived from the configured two-point settings.
	Configured *LinearFit `json:"configured_stooklijn,omitempty"`

	HeatLoss    *HeatLossResult `json:"heat_loss,omitempty"`
	GasHeatLoss *HeatLossResult `json:"gas_heat_loss,omitempty"`

	AverageCOP *float64       `json:"average_cop,omitempty"`
	Scatter    []ScatterPoint `json:"scatter,omitempty"`
	COPScatter []COPPoint     `json:"cop_scatter,omitempty"`
}
