package analysis

import (
	"sort"
	"time"

	"stooklijn/internal/model"
)

// Reading is one timestamped sensor value, the raw input before
// resampling.
type Reading struct {
	Time  time.Time
	Value float64
}

// MedianPerMinute floors timestamps to the minute and takes the median
// of each minute's readings. The median shrugs off single-sample glitches
// that a mean would absorb.
func MedianPerMinute(readings []Reading) []Reading {
	if len(readings) == 0 {
		return nil
	}

	buckets := make(map[time.Time][]float64)
	for _, r := range readings {
		minute := r.Time.Truncate(time.Minute)
		buckets[minute] = append(buckets[minute], r.Value)
	}

	out := make([]Reading, 0, len(buckets))
	for minute, values := range buckets {
		out = append(out, Reading{Time: minute, Value: median(values)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// MergeMinutes inner-joins per-minute temperature and power series on
// their timestamps. Minutes present in only one series are dropped.
func MergeMinutes(temps, powers []Reading) []model.MinuteSample {
	tempAt := make(map[time.Time]float64, len(temps))
	for _, r := range temps {
		tempAt[r.Time] = r.Value
	}

	var out []model.MinuteSample
	for _, p := range powers {
		t, ok := tempAt[p.Time]
		if !ok {
			continue
		}
		out = append(out, model.MinuteSample{Time: p.Time, Temperature: t, Power: p.Value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// HourlyMeans averages minute samples into hourly samples.
func HourlyMeans(minutes []model.MinuteSample) []model.HourlySample {
	if len(minutes) == 0 {
		return nil
	}

	type acc struct {
		temp, power float64
		n           int
	}
	buckets := make(map[time.Time]*acc)
	for _, m := range minutes {
		hour := m.Time.Truncate(time.Hour)
		a, ok := buckets[hour]
		if !ok {
			a = &acc{}
			buckets[hour] = a
		}
		a.temp += m.Temperature
		a.power += m.Power
		a.n++
	}

	out := make([]model.HourlySample, 0, len(buckets))
	for hour, a := range buckets {
		out = append(out, model.HourlySample{
			Time:        hour,
			Temperature: a.temp / float64(a.n),
			Power:       a.power / float64(a.n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// KneeStoreSamples selects the hourly samples worth keeping for future
// knee detection: active operation in cold weather.
func KneeStoreSamples(minutes []model.MinuteSample, minPower, maxTemp float64) []model.HourlySample {
	var kept []model.MinuteSample
	for _, m := range minutes {
		if m.Power >= minPower && m.Temperature < maxTemp {
			kept = append(kept, m)
		}
	}
	return HourlyMeans(kept)
}

// SamplesFromMinutes converts minute samples above the power threshold
// into fit samples. Individual defrost minutes fall below the threshold
// and are excluded point by point, so no variance filter is needed on
// this path.
func SamplesFromMinutes(minutes []model.MinuteSample, minPower float64) []Sample {
	var out []Sample
	for _, m := range minutes {
		if m.Power >= minPower {
			out = append(out, Sample{Temp: m.Temperature, Power: m.Power})
		}
	}
	return out
}

// SamplesFromHours converts hourly samples into fit samples.
func SamplesFromHours(hours []model.HourlySample) []Sample {
	out := make([]Sample, 0, len(hours))
	for _, h := range hours {
		out = append(out, Sample{Temp: h.Temperature, Power: h.Power})
	}
	return out
}
