package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"stooklijn/internal/analysis"
	"stooklijn/internal/config"
	"stooklijn/internal/model"
	"stooklijn/internal/recorder"
	"stooklijn/internal/store"
)

// Runner executes one full analysis: acquisition, knee detection through
// the fallback chain, curve estimation, and the daily statistics. One
// sequential unit of work; concurrency control is the caller's problem
// (the daemon holds a single-flight lock around Run).
type Runner struct {
	cfg      config.Config
	recorder Recorder
	api      InsightsAPI
	db       *store.DB
}

// NewRunner builds a runner around its collaborators. api may be nil;
// the run then degrades to recorder+cache coverage.
func NewRunner(cfg config.Config, rec Recorder, api InsightsAPI, db *store.DB) *Runner {
	return &Runner{cfg: cfg, recorder: rec, api: api, db: db}
}

// Run executes the analysis for the configured period.
func (r *Runner) Run(ctx context.Context) (*model.AnalysisResult, error) {
	start, end, err := r.cfg.Period(time.Now())
	if err != nil {
		return nil, err
	}

	orch := &Orchestrator{
		Recorder: r.recorder,
		API:      r.api,
		Cache:    r.db.Insights(),
		Entities: Entities{
			Power:      r.cfg.HomeAssistant.PowerEntity,
			PowerInput: r.cfg.HomeAssistant.PowerInput,
			BoilerHeat: r.cfg.HomeAssistant.BoilerHeat,
			Temps:      r.cfg.HomeAssistant.TempEntities,
		},
		HourlyWindowDays:    r.cfg.Analysis.HourlyWindowDays,
		MaxInitialFetchDays: r.cfg.Analysis.MaxInitialFetchDays,
		RetainDays:          r.cfg.Analysis.RetainDays,
	}

	acquired, err := orch.Acquire(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("acquiring telemetry: %w", err)
	}

	minutes, err := orch.MinuteHistory(ctx, end, r.cfg.Analysis.HourlyWindowDays)
	if err != nil {
		if !errors.Is(err, recorder.ErrNoData) {
			return nil, fmt.Errorf("fetching minute history: %w", err)
		}
		log.Warn("no raw minute history available, primary knee path will be skipped")
	}

	knees := r.db.KneeData()
	r.updateKneeStore(knees, minutes)

	result := &model.AnalysisResult{
		RanAt:  time.Now().UTC(),
		Counts: acquired.Counts,
	}

	result.Knee = r.detectKnee(minutes, acquired.Hours, knees)

	r.estimateCurves(result, minutes, acquired)
	r.dailyStatistics(result, acquired.Days)
	r.gasComparison(ctx, result)

	log.WithFields(logrus.Fields{
		"knee_tier": result.Knee.Tier.String(),
		"knee_temp": result.Knee.Temperature,
	}).Info("analysis complete")

	return result, nil
}

// updateKneeStore folds the current window's cold high-power hours into
// the rolling store and prunes anything past the retention horizon.
func (r *Runner) updateKneeStore(knees *store.KneeDataStore, minutes []model.MinuteSample) {
	kept := analysis.KneeStoreSamples(minutes, r.cfg.Analysis.MinPowerW, 10.0)

	byDate := make(map[time.Time][]model.HourlySample)
	for _, h := range kept {
		day := model.Day(h.Time)
		byDate[day] = append(byDate[day], h)
	}
	for day, samples := range byDate {
		if err := knees.Update(day, samples); err != nil {
			log.WithError(err).WithField("date", day.Format(model.DateFormat)).
				Warn("knee store update failed")
		}
	}

	if removed, err := knees.Prune(r.cfg.Analysis.KneeStoreYears); err != nil {
		log.WithError(err).Warn("knee store prune failed")
	} else if removed > 0 {
		log.WithField("removed", removed).Debug("knee store pruned expired points")
	}
}

// kneeState is the stage of the detection chain currently being tried.
type kneeState int

const (
	tryPrimary kneeState = iota
	trySecondary
	useConstant
	done
)

// detectKnee walks the source-priority chain until a stage produces a
// knee. The order is deliberate: the minute-resolution primary path is
// the only one free of defrost dilution; the hourly secondary path reads
// 1-2 °C warm; the constant is a flagged last resort, never silently
// mixed in with fitted values.
func (r *Runner) detectKnee(minutes []model.MinuteSample, hours []model.HourlySample, knees *store.KneeDataStore) model.KneeResult {
	grid := analysis.GridOptions{
		MinTemp:    r.cfg.Analysis.KneeMinTemp,
		MaxTemp:    r.cfg.Analysis.KneeMaxTemp,
		Step:       r.cfg.Analysis.KneeStep,
		MinSegment: 5,
		MinSamples: 10,
	}

	var result model.KneeResult
	state := tryPrimary
	for state != done {
		switch state {
		case tryPrimary:
			samples := analysis.SamplesFromMinutes(minutes, r.cfg.Analysis.MinPowerW)
			if stored, err := knees.AllPoints(); err != nil {
				log.WithError(err).Warn("knee store read failed, fitting current window only")
			} else {
				samples = append(samples, analysis.SamplesFromHours(stored)...)
			}

			fit, err := analysis.DetectKnee(samples, grid)
			if err != nil {
				log.WithError(err).WithField("points", len(samples)).
					Info("primary knee detection failed, trying hourly data")
				state = trySecondary
				continue
			}
			result = kneeFromFit(fit, model.TierPrimary, len(samples))
			state = done

		case trySecondary:
			filtered := analysis.FilterStable(hours, r.cfg.Analysis.MinPowerW)
			log.WithFields(logrus.Fields{
				"stable":            len(filtered.Stable),
				"removed_threshold": filtered.RemovedThreshold,
				"removed_variance":  filtered.RemovedVariance,
			}).Debug("stability filter applied to hourly series")

			fit, err := analysis.DetectKnee(analysis.SamplesFromHours(filtered.Stable), grid)
			if err != nil {
				log.WithError(err).Info("secondary knee detection failed, using fallback constant")
				state = useConstant
				continue
			}
			result = kneeFromFit(fit, model.TierSecondary, len(filtered.Stable))
			state = done

		case useConstant:
			result = model.KneeResult{
				Tier:        model.TierFallback,
				Temperature: r.cfg.Analysis.FallbackKneeTemp,
			}
			log.WithField("knee_temp", result.Temperature).
				Warn("knee detection exhausted all sources, using fallback constant")
			state = done
		}
	}
	return result
}

func kneeFromFit(fit model.PiecewiseFit, tier model.KneeTier, samples int) model.KneeResult {
	f := fit
	return model.KneeResult{
		Tier:        tier,
		Temperature: fit.KneeTemp,
		Power:       fit.KneePower,
		Fit:         &f,
		SampleCount: samples,
	}
}

// estimateCurves fits the stooklijn right of the knee and the freezing
// performance envelope left of it, and reports the installed curve from
// the configured points when those are set.
func (r *Runner) estimateCurves(result *model.AnalysisResult, minutes []model.MinuteSample, acquired *Acquired) {
	knee := result.Knee.Temperature

	if s := r.cfg.Stooklijn; s.Defined() {
		if line, ok := analysis.LineFromPoints(s.Temp1, s.Power1, s.Temp2, s.Power2); ok {
			result.Configured = &line
		}
	}

	if fit, err := analysis.EstimateStooklijn(minutes, knee, r.cfg.Analysis.MinPowerW); err != nil {
		log.WithError(err).Info("stooklijn estimation skipped")
	} else {
		result.Stooklijn = &fit
		if zero, ok := fit.ZeroCrossing(); ok {
			log.WithFields(logrus.Fields{
				"slope_w_per_c": fit.Slope,
				"zero_at_c":     zero,
				"points":        fit.Points,
			}).Info("stooklijn estimated from minute data")
		}
	}

	if fit, err := analysis.FreezingPerformance(acquired.Hours, knee); err != nil {
		log.WithError(err).Debug("freezing performance fit skipped")
	} else {
		result.FreezingFit = &fit
	}
}

// dailyStatistics computes the heat-loss regression, the optimal curve,
// and the COP summary from the merged daily series.
func (r *Runner) dailyStatistics(result *model.AnalysisResult, days []model.DayData) {
	heatLoss, err := analysis.HeatLoss(days)
	if err != nil {
		log.WithError(err).Info("heat-loss regression skipped")
	} else {
		result.HeatLoss = heatLoss
		result.Scatter = heatLoss.Scatter

		optimal := heatLoss.Fit
		result.Optimal = &optimal
		if balance, ok := optimal.ZeroCrossing(); ok {
			result.OptimalBalance = &balance
		}
	}

	if cop, ok := analysis.AverageCOP(days); ok {
		result.AverageCOP = &cop
	}
	result.COPScatter = analysis.COPScatter(days)
}

// gasComparison runs the gas-era heat-loss fit when configured.
func (r *Runner) gasComparison(ctx context.Context, result *model.AnalysisResult) {
	if !r.cfg.Gas.Enabled {
		return
	}

	start, err := time.Parse(model.DateFormat, r.cfg.Gas.StartDate)
	if err != nil {
		log.WithError(err).Warn("gas comparison skipped: invalid gas.start_date")
		return
	}
	end, err := time.Parse(model.DateFormat, r.cfg.Gas.EndDate)
	if err != nil {
		log.WithError(err).Warn("gas comparison skipped: invalid gas.end_date")
		return
	}
	endT := end.AddDate(0, 0, 1)

	meter, err := r.recorder.StateHistory(ctx, r.cfg.Gas.Entity, start, endT)
	if err != nil {
		log.WithError(err).Warn("gas comparison skipped: meter history unavailable")
		return
	}

	var temps []recorder.RawState
	for _, entity := range r.cfg.HomeAssistant.TempEntities {
		temps, err = r.recorder.StateHistory(ctx, entity, start, endT)
		if err == nil && len(temps) > 0 {
			break
		}
	}

	gasDays := analysis.GasDaily(toReadings(meter), toReadings(temps), analysis.GasOptions{
		CalorificValue:    r.cfg.Gas.CalorificValue,
		BoilerEfficiency:  r.cfg.Gas.BoilerEfficiency,
		HotWaterThreshold: r.cfg.Gas.HotWaterThreshold,
	})
	if len(gasDays) == 0 {
		log.Warn("gas comparison skipped: no usable meter data")
		return
	}

	gasLoss, err := analysis.HeatLoss(gasDays)
	if err != nil {
		log.WithError(err).Info("gas heat-loss regression skipped")
		return
	}
	result.GasHeatLoss = gasLoss
}
