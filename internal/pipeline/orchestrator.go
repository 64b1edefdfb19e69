// Package pipeline assembles telemetry from the recorder, the insights
// API, and the on-disk caches, and runs the analysis over the result.
package pipeline

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"stooklijn/internal/analysis"
	"stooklijn/internal/model"
	"stooklijn/internal/recorder"
	"stooklijn/internal/store"
)

var log = logrus.StandardLogger()

// InsightsAPI fetches one day of hourly insights. Implemented by
// quattapi.Client; nil-able in degraded runs.
type InsightsAPI interface {
	FetchDay(ctx context.Context, date time.Time) (*model.DailyRecord, error)
}

// Recorder is the host telemetry database. Implemented by
// recorder.Client.
type Recorder interface {
	DailyMeanSeries(ctx context.Context, entityID string, start, end time.Time) (map[time.Time]float64, error)
	StateHistory(ctx context.Context, entityID string, start, end time.Time) ([]recorder.RawState, error)
	OldestState(ctx context.Context) (time.Time, error)
}

// Entities names the recorder sensors the orchestrator reads.
type Entities struct {
	Power      string
	PowerInput string
	BoilerHeat string
	Temps      []string // priority order, first with data wins
}

// Orchestrator merges the three telemetry sources under the insights
// cache. Caches are explicit owned collaborators, not globals; the
// lifecycle is open-at-start, write-through, close-at-end.
type Orchestrator struct {
	Recorder Recorder
	API      InsightsAPI // nil when the API is not configured
	Cache    *store.InsightsCache
	Entities Entities

	HourlyWindowDays    int
	MaxInitialFetchDays int
	RetainDays          int
}

// Acquired is the merged input for one analysis run.
type Acquired struct {
	Start, End time.Time
	Days       []model.DayData      // one per date with any coverage, ascending
	Hours      []model.HourlySample // hourly detail from overlay records, ascending
	Counts     model.SourceCounts
}

// Acquire assembles the merged series for [start, end].
//
// Recorder daily means are the coverage base for every date. Any date
// already in the insights cache is overlaid with its stored record, no
// matter how old; inside the most recent hourly window, missing dates
// are fetched from the API one at a time and written through immediately
// so a failure partway keeps the prefix. The overlay always wins where
// both exist: the hourly source carries higher-resolution ground truth.
func (o *Orchestrator) Acquire(ctx context.Context, start, end time.Time) (*Acquired, error) {
	start, end = model.Day(start), model.Day(end)

	// First-run guard: a brand-new install must not issue years of API
	// calls. With an empty cache the window is clamped to the fetch cap,
	// whatever the configured period asks for. Later gaps go through the
	// normal missing-date path without re-triggering this.
	empty, err := o.Cache.IsEmpty()
	if err != nil {
		log.WithError(err).Warn("insights cache unreadable, treating as empty")
		empty = true
	}
	requested := daysBetween(start, end)
	if empty && requested > o.MaxInitialFetchDays {
		clamped := end.AddDate(0, 0, -(o.MaxInitialFetchDays - 1))
		log.WithFields(logrus.Fields{
			"requested_days": requested,
			"deferred_days":  requested - o.MaxInitialFetchDays,
			"start":          clamped.Format(model.DateFormat),
		}).Info("first run: clamping analysis window to the initial fetch cap")
		start = clamped
	}

	acq := &Acquired{Start: start, End: end}

	means, err := o.dailyMeans(ctx, start, end)
	if err != nil {
		return nil, err
	}

	hourlyStart := o.hourlyWindowStart(ctx, start, end)
	overlays := o.overlayRecords(ctx, start, hourlyStart, end, &acq.Counts)

	o.merge(acq, means, overlays)

	if removed, err := o.Cache.Cleanup(o.RetainDays); err != nil {
		log.WithError(err).Warn("cache cleanup failed")
	} else if removed > 0 {
		log.WithField("removed", removed).Debug("cache cleanup removed expired days")
	}

	log.WithFields(logrus.Fields{
		"days":          len(acq.Days),
		"from_cache":    acq.Counts.Cache,
		"from_api":      acq.Counts.API,
		"recorder_only": acq.Counts.RecorderOnly,
	}).Info("acquisition complete")

	return acq, nil
}

// dailyMeans builds the per-date recorder base from long-term statistics.
func (o *Orchestrator) dailyMeans(ctx context.Context, start, end time.Time) (map[time.Time]model.DailyMean, error) {
	power, err := o.Recorder.DailyMeanSeries(ctx, o.Entities.Power, start, end)
	if err != nil {
		return nil, err
	}

	temp := map[time.Time]float64{}
	for _, entity := range o.Entities.Temps {
		temp, err = o.Recorder.DailyMeanSeries(ctx, entity, start, end)
		if err == nil {
			log.WithField("entity", entity).Debug("using temperature statistics")
			break
		}
		if !errors.Is(err, recorder.ErrNoData) {
			return nil, err
		}
	}

	electric := o.optionalSeries(ctx, o.Entities.PowerInput, start, end)
	boiler := o.optionalSeries(ctx, o.Entities.BoilerHeat, start, end)

	means := make(map[time.Time]model.DailyMean, len(power))
	for date, p := range power {
		m := model.DailyMean{Date: date, Power: p, Temperature: math.NaN()}
		if t, ok := temp[date]; ok {
			m.Temperature = t
		}
		m.Electric = electric[date]
		m.BoilerHeat = boiler[date]
		means[date] = m
	}
	return means, nil
}

func (o *Orchestrator) optionalSeries(ctx context.Context, entity string, start, end time.Time) map[time.Time]float64 {
	if entity == "" {
		return map[time.Time]float64{}
	}
	series, err := o.Recorder.DailyMeanSeries(ctx, entity, start, end)
	if err != nil {
		if !errors.Is(err, recorder.ErrNoData) {
			log.WithError(err).WithField("entity", entity).Warn("statistics query failed")
		}
		return map[time.Time]float64{}
	}
	return series
}

// hourlyWindowStart bounds the hourly-detail window: the most recent
// HourlyWindowDays days, not reaching past either the analysis start or
// the recorder's raw-state retention.
func (o *Orchestrator) hourlyWindowStart(ctx context.Context, start, end time.Time) time.Time {
	ws := end.AddDate(0, 0, -(o.HourlyWindowDays - 1))
	if ws.Before(start) {
		ws = start
	}
	if oldest, err := o.Recorder.OldestState(ctx); err == nil {
		if day := model.Day(oldest); day.After(ws) {
			ws = day
		}
	}
	return ws
}

// overlay is one day's hourly record with its provenance.
type overlay struct {
	rec    *model.DailyRecord
	source model.DaySource
}

// overlayRecords returns hourly records for [start, end]. Every date is
// looked up in the cache, so days accumulated on earlier runs keep their
// hourly detail long after they leave the fetch window. Cache misses are
// fetched from the API only inside [hourlyStart, end]; older misses stay
// recorder-only. API failures skip that date only; the run degrades,
// never dies here.
func (o *Orchestrator) overlayRecords(ctx context.Context, start, hourlyStart, end time.Time, counts *model.SourceCounts) map[time.Time]overlay {
	overlays := make(map[time.Time]overlay)

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			// Days written so far stay cached; per-date writes make
			// partial progress safe.
			log.Warn("acquisition canceled mid-window")
			break
		}

		cached, err := o.Cache.Get(date)
		if err != nil {
			log.WithError(err).WithField("date", date.Format(model.DateFormat)).
				Warn("cache read failed")
		}
		if cached != nil {
			overlays[date] = overlay{rec: cached, source: model.SourceCache}
			counts.Cache++
			continue
		}

		if o.API == nil || date.Before(hourlyStart) {
			continue
		}
		rec, err := o.API.FetchDay(ctx, date)
		if err != nil {
			log.WithError(err).WithField("date", date.Format(model.DateFormat)).
				Warn("insights fetch failed, date stays recorder-only")
			continue
		}
		overlays[date] = overlay{rec: rec, source: model.SourceAPI}
		counts.API++

		if err := o.Cache.Put(date, rec); err != nil {
			if errors.Is(err, store.ErrInvalidWrite) {
				log.WithField("date", date.Format(model.DateFormat)).
					Warn("refused to cache incomplete day")
			} else {
				log.WithError(err).Warn("cache write failed, will refetch next run")
			}
		}
	}

	return overlays
}

// merge lays overlay records over the recorder base.
func (o *Orchestrator) merge(acq *Acquired, means map[time.Time]model.DailyMean, overlays map[time.Time]overlay) {
	dates := make(map[time.Time]struct{}, len(means))
	for d := range means {
		dates[d] = struct{}{}
	}
	for d := range overlays {
		dates[d] = struct{}{}
	}

	ordered := make([]time.Time, 0, len(dates))
	for d := range dates {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	for _, date := range ordered {
		mean, hasMean := means[date]
		ov := overlays[date]
		rec := ov.rec

		if rec == nil {
			if !hasMean {
				continue
			}
			day := model.DayData{
				Date:        date,
				Source:      model.SourceRecorder,
				MeanTemp:    mean.Temperature,
				TotalHeat:   mean.Power * 24,
				TotalElec:   mean.Electric * 24,
				BoilerHeat:  mean.BoilerHeat * 24,
				HeatPerHour: mean.Power + mean.BoilerHeat,
			}
			if mean.Electric > 0 {
				day.AverageCOP = mean.Power / mean.Electric
			}
			acq.Days = append(acq.Days, day)
			acq.Counts.RecorderOnly++
			continue
		}

		day := model.DayData{
			Date:        date,
			Source:      ov.source,
			MeanTemp:    hourlyMeanTemp(rec.Hours),
			TotalHeat:   rec.TotalHeat,
			TotalElec:   rec.TotalElectric,
			BoilerHeat:  rec.BoilerHeat,
			HeatPerHour: (rec.TotalHeat + rec.BoilerHeat) / 24,
			AverageCOP:  rec.AverageCOP,
		}
		if math.IsNaN(day.MeanTemp) && hasMean {
			day.MeanTemp = mean.Temperature
		}
		if day.AverageCOP == 0 && rec.TotalElectric > 0 {
			day.AverageCOP = rec.TotalHeat / rec.TotalElectric
		}
		acq.Days = append(acq.Days, day)
		acq.Hours = append(acq.Hours, rec.Hours...)
	}

	sort.Slice(acq.Hours, func(i, j int) bool { return acq.Hours[i].Time.Before(acq.Hours[j].Time) })
}

// MinuteHistory fetches and merges minute-resolution power and outdoor
// temperature from raw recorder states over the trailing window.
// Temperature entities are tried in priority order.
func (o *Orchestrator) MinuteHistory(ctx context.Context, end time.Time, days int) ([]model.MinuteSample, error) {
	endT := model.Day(end).AddDate(0, 0, 1)
	startT := endT.AddDate(0, 0, -days)

	var temps []analysis.Reading
	for _, entity := range o.Entities.Temps {
		states, err := o.Recorder.StateHistory(ctx, entity, startT, endT)
		if err != nil {
			return nil, err
		}
		if len(states) > 0 {
			log.WithFields(logrus.Fields{"entity": entity, "records": len(states)}).
				Debug("using raw temperature history")
			temps = toReadings(states)
			break
		}
	}

	powerStates, err := o.Recorder.StateHistory(ctx, o.Entities.Power, startT, endT)
	if err != nil {
		return nil, err
	}

	if len(temps) == 0 || len(powerStates) == 0 {
		return nil, recorder.ErrNoData
	}

	merged := analysis.MergeMinutes(
		analysis.MedianPerMinute(temps),
		analysis.MedianPerMinute(toReadings(powerStates)),
	)
	log.WithField("minutes", len(merged)).Debug("merged minute history")
	return merged, nil
}

func toReadings(states []recorder.RawState) []analysis.Reading {
	out := make([]analysis.Reading, len(states))
	for i, s := range states {
		out[i] = analysis.Reading{Time: s.Time, Value: s.Value}
	}
	return out
}

func hourlyMeanTemp(hours []model.HourlySample) float64 {
	if len(hours) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, h := range hours {
		sum += h.Temperature
	}
	return sum / float64(len(hours))
}

func daysBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}
