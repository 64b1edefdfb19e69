package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stooklijn/internal/model"
	"stooklijn/internal/recorder"
	"stooklijn/internal/store"
)

type fakeRecorder struct {
	means  map[string]map[time.Time]float64
	states map[string][]recorder.RawState
	oldest time.Time
}

func (f *fakeRecorder) DailyMeanSeries(_ context.Context, entityID string, start, end time.Time) (map[time.Time]float64, error) {
	series, ok := f.means[entityID]
	if !ok || len(series) == 0 {
		return nil, recorder.ErrNoData
	}
	out := make(map[time.Time]float64)
	for date, v := range series {
		if !date.Before(model.Day(start)) && !date.After(model.Day(end)) {
			out[date] = v
		}
	}
	if len(out) == 0 {
		return nil, recorder.ErrNoData
	}
	return out, nil
}

func (f *fakeRecorder) StateHistory(_ context.Context, entityID string, start, end time.Time) ([]recorder.RawState, error) {
	var out []recorder.RawState
	for _, s := range f.states[entityID] {
		if !s.Time.Before(start) && s.Time.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRecorder) OldestState(_ context.Context) (time.Time, error) {
	if f.oldest.IsZero() {
		return time.Time{}, recorder.ErrNoData
	}
	return f.oldest, nil
}

type fakeAPI struct {
	mu     sync.Mutex
	calls  int
	failOn map[time.Time]bool
}

func (f *fakeAPI) FetchDay(_ context.Context, date time.Time) (*model.DailyRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	day := model.Day(date)
	if f.failOn[day] {
		return nil, fmt.Errorf("synthetic fetch failure for %s", day.Format(model.DateFormat))
	}
	return &model.DailyRecord{
		Date:          day,
		WindowStart:   day,
		WindowEnd:     day.AddDate(0, 0, 1),
		TotalHeat:     48000,
		TotalElectric: 12000,
		AverageCOP:    4.0,
		Hours: []model.HourlySample{
			{Time: day.Add(8 * time.Hour), Temperature: -1, Power: 3000},
			{Time: day.Add(9 * time.Hour), Temperature: -0.5, Power: 2900},
		},
	}, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// meansFor fills a daily series with a constant value over [start, end].
func meansFor(start, end time.Time, value float64) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	for d := model.Day(start); !d.After(model.Day(end)); d = d.AddDate(0, 0, 1) {
		out[d] = value
	}
	return out
}

func testOrchestrator(t *testing.T, rec Recorder, api InsightsAPI) *Orchestrator {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Orchestrator{
		Recorder: rec,
		API:      api,
		Cache:    db.Insights(),
		Entities: Entities{
			Power:      "sensor.power",
			PowerInput: "sensor.electric",
			Temps:      []string{"sensor.temp_a", "sensor.temp_b"},
		},
		HourlyWindowDays:    30,
		MaxInitialFetchDays: 30,
		RetainDays:          365,
	}
}

func TestAcquireFirstRunClampsWindow(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -99)

	rec := &fakeRecorder{
		means: map[string]map[time.Time]float64{
			"sensor.power":  meansFor(start, end, 2800),
			"sensor.temp_b": meansFor(start, end, 1.0),
		},
		oldest: start.AddDate(0, 0, -10),
	}
	api := &fakeAPI{}
	o := testOrchestrator(t, rec, api)

	acq, err := o.Acquire(context.Background(), start, end)
	require.NoError(t, err)

	wantStart := end.AddDate(0, 0, -29)
	require.Equal(t, wantStart, acq.Start, "empty cache must clamp the window")
	require.Equal(t, 30, api.callCount(), "one fetch per day in the clamped window")
	require.Equal(t, 30, acq.Counts.API)
	require.Zero(t, acq.Counts.Cache)
	require.Len(t, acq.Days, 30)
}

func TestAcquireSecondRunHitsCacheOnly(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -9)

	rec := &fakeRecorder{
		means: map[string]map[time.Time]float64{
			"sensor.power":  meansFor(start, end, 2800),
			"sensor.temp_a": meansFor(start, end, 1.0),
		},
		oldest: start,
	}
	api := &fakeAPI{}
	o := testOrchestrator(t, rec, api)

	_, err := o.Acquire(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, 10, api.callCount())

	acq, err := o.Acquire(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, 10, api.callCount(), "cached dates must never be re-fetched")
	require.Equal(t, 10, acq.Counts.Cache)
	require.Zero(t, acq.Counts.API)

	for _, d := range acq.Days {
		require.Equal(t, model.SourceCache, d.Source, "%s was served from the cache", d.Date.Format(model.DateFormat))
	}
}

func TestAcquireOverlaysCachedDaysOutsideHourlyWindow(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -20)
	cachedDay := end.AddDate(0, 0, -9)

	rec := &fakeRecorder{
		means: map[string]map[time.Time]float64{
			"sensor.power":  meansFor(start, end, 2800),
			"sensor.temp_a": meansFor(start, end, 1.0),
		},
		oldest: start,
	}
	api := &fakeAPI{}
	o := testOrchestrator(t, rec, api)
	o.HourlyWindowDays = 5

	// A day left behind by an earlier run, well before the current
	// hourly window.
	require.NoError(t, o.Cache.Put(cachedDay, &model.DailyRecord{
		Date:          cachedDay,
		WindowStart:   cachedDay,
		WindowEnd:     cachedDay.AddDate(0, 0, 1),
		TotalHeat:     52000,
		TotalElectric: 13000,
		AverageCOP:    4.0,
		Hours: []model.HourlySample{
			{Time: cachedDay.Add(7 * time.Hour), Temperature: -2.5, Power: 3300},
		},
	}))

	acq, err := o.Acquire(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, 1, acq.Counts.Cache, "the old cached day must be overlaid")
	require.Equal(t, 5, acq.Counts.API, "fetches stay bounded to the hourly window")
	require.Equal(t, 5, api.callCount())
	require.Equal(t, 15, acq.Counts.RecorderOnly)

	var cached *model.DayData
	for i := range acq.Days {
		if acq.Days[i].Date.Equal(cachedDay) {
			cached = &acq.Days[i]
		}
	}
	require.NotNil(t, cached)
	require.Equal(t, model.SourceCache, cached.Source)
	require.InDelta(t, 52000, cached.TotalHeat, 1e-6)

	found := false
	for _, h := range acq.Hours {
		if h.Time.Equal(cachedDay.Add(7 * time.Hour)) {
			found = true
			require.Equal(t, 3300.0, h.Power)
		}
	}
	require.True(t, found, "cached hourly detail must reach the merged series")
}

func TestAcquireFetchFailureDegradesToRecorder(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -4)
	badDay := end.AddDate(0, 0, -2)

	rec := &fakeRecorder{
		means: map[string]map[time.Time]float64{
			"sensor.power":    meansFor(start, end, 2800),
			"sensor.electric": meansFor(start, end, 700),
			"sensor.temp_a":   meansFor(start, end, 1.0),
		},
		oldest: start,
	}
	api := &fakeAPI{failOn: map[time.Time]bool{badDay: true}}
	o := testOrchestrator(t, rec, api)

	acq, err := o.Acquire(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, 4, acq.Counts.API)
	require.Equal(t, 1, acq.Counts.RecorderOnly)
	require.Len(t, acq.Days, 5)

	for _, d := range acq.Days {
		if d.Date.Equal(badDay) {
			require.Equal(t, model.SourceRecorder, d.Source)
			require.InDelta(t, 2800*24, d.TotalHeat, 1e-6)
			require.InDelta(t, 2800.0/700, d.AverageCOP, 1e-9)
		} else {
			require.Equal(t, model.SourceAPI, d.Source)
			require.InDelta(t, 48000, d.TotalHeat, 1e-6)
		}
	}
}

func TestAcquireWithoutAPIUsesRecorderBase(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -6)

	rec := &fakeRecorder{
		means: map[string]map[time.Time]float64{
			"sensor.power":  meansFor(start, end, 2600),
			"sensor.temp_a": meansFor(start, end, 3.0),
		},
		oldest: start,
	}
	o := testOrchestrator(t, rec, nil)

	acq, err := o.Acquire(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, acq.Days, 7)
	require.Equal(t, 7, acq.Counts.RecorderOnly)
	require.Empty(t, acq.Hours)
}

func TestMinuteHistoryMergesRawStates(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	minute := end.Add(12 * time.Hour)

	rec := &fakeRecorder{
		states: map[string][]recorder.RawState{
			"sensor.power": {
				{Time: minute.Add(5 * time.Second), Value: 3000},
				{Time: minute.Add(30 * time.Second), Value: 3050},
			},
			"sensor.temp_a": {
				{Time: minute.Add(10 * time.Second), Value: -1.2},
			},
		},
	}
	o := testOrchestrator(t, rec, nil)

	minutes, err := o.MinuteHistory(context.Background(), end, 7)
	require.NoError(t, err)
	require.Len(t, minutes, 1)
	require.Equal(t, minute, minutes[0].Time)
	require.Equal(t, -1.2, minutes[0].Temperature)
	require.InDelta(t, 3025, minutes[0].Power, 1e-9)
}

func TestMinuteHistoryNoData(t *testing.T) {
	end := model.Day(time.Now()).AddDate(0, 0, -1)
	o := testOrchestrator(t, &fakeRecorder{}, nil)

	_, err := o.MinuteHistory(context.Background(), end, 7)
	require.ErrorIs(t, err, recorder.ErrNoData)
}
