package store

import (
	"database/sql"
	"fmt"
	"time"

	"stooklijn/internal/model"
)

// KneeDataStore is the rolling multi-year store of filtered hourly
// (temperature, power) samples used only for knee detection. It is empty
// until the first cold period after installation and accumulates across
// winters, so a mild recent month still benefits from last year's frost.
type KneeDataStore struct {
	db *sql.DB
}

// Update upserts one day's worth of hourly samples. New data for an
// existing date replaces it: a day's later, more complete data supersedes
// whatever an earlier run saw.
func (s *KneeDataStore) Update(date time.Time, samples []model.HourlySample) error {
	key := model.Day(date).Format(model.DateFormat)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM knee_points WHERE date = ?", key); err != nil {
		return fmt.Errorf("replacing knee points for %s: %w", key, err)
	}
	for _, h := range samples {
		_, err := tx.Exec(`INSERT OR REPLACE INTO knee_points (date, hour, temperature, power)
			VALUES (?, ?, ?, ?)`,
			key, h.Time.UTC().Format(time.RFC3339), h.Temperature, h.Power)
		if err != nil {
			return fmt.Errorf("writing knee point %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// Prune removes dates older than maxYears before now. Runs after every
// update so the invariant holds across runs.
func (s *KneeDataStore) Prune(maxYears int) (int, error) {
	cutoff := model.Day(time.Now()).AddDate(-maxYears, 0, 0).Format(model.DateFormat)
	res, err := s.db.Exec("DELETE FROM knee_points WHERE date < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning knee store: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// AllPoints returns every stored sample in date order, the historical
// augmentation input for the primary knee detection path.
func (s *KneeDataStore) AllPoints() ([]model.HourlySample, error) {
	rows, err := s.db.Query("SELECT hour, temperature, power FROM knee_points ORDER BY date, hour")
	if err != nil {
		return nil, fmt.Errorf("reading knee store: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []model.HourlySample
	for rows.Next() {
		var hourStr string
		var p model.HourlySample
		if err := rows.Scan(&hourStr, &p.Temperature, &p.Power); err != nil {
			return nil, err
		}
		p.Time, _ = time.Parse(time.RFC3339, hourStr)
		points = append(points, p)
	}
	return points, rows.Err()
}

// Dates returns the distinct dates currently held, oldest first.
func (s *KneeDataStore) Dates() ([]time.Time, error) {
	rows, err := s.db.Query("SELECT DISTINCT date FROM knee_points ORDER BY date")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var dates []time.Time
	for rows.Next() {
		var str string
		if err := rows.Scan(&str); err != nil {
			return nil, err
		}
		d, err := time.Parse(model.DateFormat, str)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
