// Package recorder reads heat-pump telemetry from a Home Assistant
// recorder database. Long-term statistics cover the full configured
// history; raw state changes only survive for the host's retention
// window, so callers must bound detail queries accordingly.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"stooklijn/internal/model"
)

// ErrNoData is returned when a query matches no usable rows.
var ErrNoData = errors.New("recorder: no data for entity")

// RawState is one timestamped numeric sensor reading.
type RawState struct {
	Time  time.Time
	Value float64
}

// Client is a read-only view of the recorder database.
type Client struct {
	db *sql.DB
}

// Open opens the recorder database read-only.
func Open(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=query_only(on)")
	if err != nil {
		return nil, fmt.Errorf("opening recorder db: %w", err)
	}
	return &Client{db: db}, nil
}

// Close closes the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

// DailyMeanSeries returns per-day mean values for one statistic entity
// over [start, end], both inclusive. Uses the recorder's long-term
// statistics, which exist for the entire configured history.
func (c *Client) DailyMeanSeries(ctx context.Context, entityID string, start, end time.Time) (map[time.Time]float64, error) {
	from := model.Day(start).Unix()
	until := model.Day(end).AddDate(0, 0, 1).Unix()

	rows, err := c.db.QueryContext(ctx, `
		SELECT date(s.start_ts, 'unixepoch') AS day, AVG(s.mean)
		FROM statistics s
		JOIN statistics_meta m ON m.id = s.metadata_id
		WHERE m.statistic_id = ? AND s.start_ts >= ? AND s.start_ts < ? AND s.mean IS NOT NULL
		GROUP BY day ORDER BY day`,
		entityID, from, until)
	if err != nil {
		return nil, fmt.Errorf("querying statistics for %s: %w", entityID, err)
	}
	defer func() { _ = rows.Close() }()

	series := make(map[time.Time]float64)
	for rows.Next() {
		var dayStr string
		var mean float64
		if err := rows.Scan(&dayStr, &mean); err != nil {
			return nil, err
		}
		day, err := time.Parse(model.DateFormat, dayStr)
		if err != nil {
			continue
		}
		series[day] = mean
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, entityID)
	}
	return series, nil
}

// StateHistory returns raw numeric state changes for one entity over
// [start, end]. Non-numeric states (unavailable, unknown) are skipped.
func (c *Client) StateHistory(ctx context.Context, entityID string, start, end time.Time) ([]RawState, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.state, s.last_updated_ts
		FROM states s
		JOIN states_meta m ON m.metadata_id = s.metadata_id
		WHERE m.entity_id = ? AND s.last_updated_ts >= ? AND s.last_updated_ts <= ?
		ORDER BY s.last_updated_ts`,
		entityID, float64(start.Unix()), float64(end.Unix()))
	if err != nil {
		return nil, fmt.Errorf("querying states for %s: %w", entityID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []RawState
	for rows.Next() {
		var stateStr sql.NullString
		var ts float64
		if err := rows.Scan(&stateStr, &ts); err != nil {
			return nil, err
		}
		if !stateStr.Valid {
			continue
		}
		v, err := strconv.ParseFloat(stateStr.String, 64)
		if err != nil {
			continue
		}
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * 1e9)
		out = append(out, RawState{Time: time.Unix(sec, nsec).UTC(), Value: v})
	}
	return out, rows.Err()
}

// OldestState returns the timestamp of the oldest retained raw state,
// which bounds how far back the hourly detail window can reach.
func (c *Client) OldestState(ctx context.Context) (time.Time, error) {
	var ts sql.NullFloat64
	err := c.db.QueryRowContext(ctx, "SELECT MIN(last_updated_ts) FROM states").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying retention start: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, ErrNoData
	}
	return time.Unix(int64(ts.Float64), 0).UTC(), nil
}
