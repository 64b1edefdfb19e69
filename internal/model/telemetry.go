// Package model defines the telemetry and analysis result types shared
// across the acquisition pipeline, stores, and renderers.
package model

import "time"

// DateFormat is the ISO calendar date layout used at every boundary
// (database keys, API payloads, config values).
const DateFormat = "2006-01-02"

// Day truncates t to midnight UTC, the canonical per-date key.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HourlySample is one resampled hour of operation: mean outdoor
// temperature and mean heat-pump thermal output for that hour.
type HourlySample struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	Power       float64   `json:"power"`
}

// MinuteSample is one minute of recorder history, median-aggregated.
// Minute resolution matters: hourly averages blend defrost and partial
// operation into hours that look deceptively normal.
type MinuteSample struct {
	Time        time.Time
	Temperature float64
	Power       float64
}

// DailyRecord is one fully elapsed calendar day of insights data.
// Immutable once cached: a day is only written after it has passed.
type DailyRecord struct {
	Date          time.Time      `json:"date"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	TotalHeat     float64        `json:"total_heat"`     // Wh delivered by the heat pump
	TotalElectric float64        `json:"total_electric"` // Wh consumed by the heat pump
	BoilerHeat    float64        `json:"boiler_heat"`    // Wh delivered by the backup boiler
	AverageCOP    float64        `json:"average_cop"`
	Hours         []HourlySample `json:"hours"`
}

// DailyMean holds one day of recorder long-term statistics. Always
// available for the full configured history, unlike raw states.
type DailyMean struct {
	Date        time.Time
	Power       float64 // mean heat output W
	Temperature float64 // mean outdoor temperature °C
	Electric    float64 // mean electrical input W
	BoilerHeat  float64 // mean boiler heat output W
}

// DaySource identifies where a merged day's data came from.
type DaySource int

const (
	SourceRecorder DaySource = iota // daily means only
	SourceCache                     // hourly detail from the insights cache
	SourceAPI                       // hourly detail fetched this run
)

func (s DaySource) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceAPI:
		return "api"
	default:
		return "recorder"
	}
}

// DayData is one merged day: recorder means as the base, overlaid with
// higher-resolution insights data where available.
type DayData struct {
	Date        time.Time
	Source      DaySource
	MeanTemp    float64
	TotalHeat   float64 // Wh, heat pump
	TotalElec   float64 // Wh
	BoilerHeat  float64 // Wh
	HeatPerHour float64 // W, (TotalHeat+BoilerHeat)/24
	AverageCOP  float64
}
