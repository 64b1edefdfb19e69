package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stooklijn/internal/model"
)

// ErrInvalidWrite is returned when a caller tries to cache the current or
// a future day. Today's data can still change and must never be cached.
var ErrInvalidWrite = errors.New("store: refusing to cache an incomplete day")

// InsightsCache is the persisted per-day cache of hourly insights records.
// Entries are write-once per date; the pipeline never re-fetches a date
// that is already present.
type InsightsCache struct {
	db *sql.DB
}

// Stats summarizes the cache contents.
type Stats struct {
	Days   int
	Oldest time.Time
	Newest time.Time
}

// Get returns the cached record for a date, or (nil, nil) when absent.
func (c *InsightsCache) Get(date time.Time) (*model.DailyRecord, error) {
	key := model.Day(date).Format(model.DateFormat)

	var rec model.DailyRecord
	var dateStr, winStart, winEnd string
	err := c.db.QueryRow(`SELECT date, window_start, window_end, total_heat,
		total_electric, boiler_heat, average_cop
		FROM insight_days WHERE date = ?`, key).
		Scan(&dateStr, &winStart, &winEnd, &rec.TotalHeat, &rec.TotalElectric,
			&rec.BoilerHeat, &rec.AverageCOP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached day %s: %w", key, err)
	}

	rec.Date, _ = time.Parse(model.DateFormat, dateStr)
	rec.WindowStart, _ = time.Parse(time.RFC3339, winStart)
	rec.WindowEnd, _ = time.Parse(time.RFC3339, winEnd)

	rows, err := c.db.Query(`SELECT hour, temperature, power
		FROM insight_hours WHERE date = ? ORDER BY hour`, key)
	if err != nil {
		return nil, fmt.Errorf("reading cached hours %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var hourStr string
		var s model.HourlySample
		if err := rows.Scan(&hourStr, &s.Temperature, &s.Power); err != nil {
			return nil, err
		}
		s.Time, _ = time.Parse(time.RFC3339, hourStr)
		rec.Hours = append(rec.Hours, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &rec, nil
}

// Has reports whether a date is already cached without loading its hours.
func (c *InsightsCache) Has(date time.Time) (bool, error) {
	key := model.Day(date).Format(model.DateFormat)
	var one int
	err := c.db.QueryRow("SELECT 1 FROM insight_days WHERE date = ?", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// IsEmpty reports whether the cache holds no days at all. The first-run
// fetch cap only applies in that state.
func (c *InsightsCache) IsEmpty() (bool, error) {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM insight_days").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// Put stores a fully elapsed day. Fails with ErrInvalidWrite when the date
// is today or later. Overwriting an existing date is idempotent.
func (c *InsightsCache) Put(date time.Time, rec *model.DailyRecord) error {
	day := model.Day(date)
	if !day.Before(model.Day(time.Now())) {
		return fmt.Errorf("%w: %s", ErrInvalidWrite, day.Format(model.DateFormat))
	}
	key := day.Format(model.DateFormat)

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT OR REPLACE INTO insight_days
		(date, window_start, window_end, total_heat, total_electric, boiler_heat, average_cop, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key,
		rec.WindowStart.UTC().Format(time.RFC3339),
		rec.WindowEnd.UTC().Format(time.RFC3339),
		rec.TotalHeat, rec.TotalElectric, rec.BoilerHeat, rec.AverageCOP,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing day %s: %w", key, err)
	}

	if _, err = tx.Exec("DELETE FROM insight_hours WHERE date = ?", key); err != nil {
		return err
	}
	for _, h := range rec.Hours {
		_, err = tx.Exec(`INSERT OR REPLACE INTO insight_hours (date, hour, temperature, power)
			VALUES (?, ?, ?, ?)`,
			key, h.Time.UTC().Format(time.RFC3339), h.Temperature, h.Power)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Cleanup removes entries older than retainDays before today. Called
// opportunistically after every write batch.
func (c *InsightsCache) Cleanup(retainDays int) (int, error) {
	cutoff := model.Day(time.Now()).AddDate(0, 0, -retainDays).Format(model.DateFormat)
	res, err := c.db.Exec("DELETE FROM insight_days WHERE date < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up cache: %w", err)
	}
	n, _ := res.RowsAffected()
	// insight_hours rows go with their day via ON DELETE CASCADE.
	return int(n), nil
}

// GetStats returns day count and date bounds of the cache.
func (c *InsightsCache) GetStats() (Stats, error) {
	var s Stats
	var oldest, newest sql.NullString
	err := c.db.QueryRow("SELECT COUNT(*), MIN(date), MAX(date) FROM insight_days").
		Scan(&s.Days, &oldest, &newest)
	if err != nil {
		return s, err
	}
	if oldest.Valid {
		s.Oldest, _ = time.Parse(model.DateFormat, oldest.String)
	}
	if newest.Valid {
		s.Newest, _ = time.Parse(model.DateFormat, newest.String)
	}
	return s, nil
}
