package recorder

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const fixtureSchema = `
CREATE TABLE statistics_meta (
	id INTEGER PRIMARY KEY,
	statistic_id TEXT NOT NULL
);
CREATE TABLE statistics (
	id INTEGER PRIMARY KEY,
	metadata_id INTEGER NOT NULL,
	start_ts REAL NOT NULL,
	mean REAL
);
CREATE TABLE states_meta (
	metadata_id INTEGER PRIMARY KEY,
	entity_id TEXT NOT NULL
);
CREATE TABLE states (
	state_id INTEGER PRIMARY KEY,
	metadata_id INTEGER NOT NULL,
	state TEXT,
	last_updated_ts REAL
);
`

// newFixtureDB builds a minimal recorder database in the test dir.
func newFixtureDB(t *testing.T) (*Client, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "home-assistant_v2.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	_, err = raw.Exec(fixtureSchema)
	require.NoError(t, err)

	client, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, raw
}

func TestDailyMeanSeries(t *testing.T) {
	client, raw := newFixtureDB(t)

	_, err := raw.Exec("INSERT INTO statistics_meta (id, statistic_id) VALUES (1, 'sensor.power')")
	require.NoError(t, err)

	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	for hour, mean := range map[int]float64{3: 3000, 4: 3200, 27: 2000} {
		_, err := raw.Exec("INSERT INTO statistics (metadata_id, start_ts, mean) VALUES (1, ?, ?)",
			float64(day.Add(time.Duration(hour)*time.Hour).Unix()), mean)
		require.NoError(t, err)
	}
	// NULL means must be ignored.
	_, err = raw.Exec("INSERT INTO statistics (metadata_id, start_ts, mean) VALUES (1, ?, NULL)",
		float64(day.Add(5*time.Hour).Unix()))
	require.NoError(t, err)

	series, err := client.DailyMeanSeries(context.Background(), "sensor.power", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.InDelta(t, 3100, series[day], 1e-9)
	require.InDelta(t, 2000, series[day.AddDate(0, 0, 1)], 1e-9)
}

func TestDailyMeanSeriesNoData(t *testing.T) {
	client, _ := newFixtureDB(t)

	_, err := client.DailyMeanSeries(context.Background(), "sensor.absent",
		time.Now().AddDate(0, 0, -7), time.Now())
	require.ErrorIs(t, err, ErrNoData)
}

func TestStateHistorySkipsNonNumeric(t *testing.T) {
	client, raw := newFixtureDB(t)

	_, err := raw.Exec("INSERT INTO states_meta (metadata_id, entity_id) VALUES (7, 'sensor.temp')")
	require.NoError(t, err)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for i, state := range []string{"-1.5", "unavailable", "-1.7", "unknown"} {
		_, err := raw.Exec("INSERT INTO states (metadata_id, state, last_updated_ts) VALUES (7, ?, ?)",
			state, float64(base.Add(time.Duration(i)*time.Minute).Unix()))
		require.NoError(t, err)
	}

	states, err := client.StateHistory(context.Background(), "sensor.temp", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Equal(t, -1.5, states[0].Value)
	require.Equal(t, -1.7, states[1].Value)
	require.True(t, states[0].Time.Equal(base))
}

func TestOldestState(t *testing.T) {
	client, raw := newFixtureDB(t)

	_, err := client.OldestState(context.Background())
	require.ErrorIs(t, err, ErrNoData)

	_, err = raw.Exec("INSERT INTO states_meta (metadata_id, entity_id) VALUES (1, 'sensor.x')")
	require.NoError(t, err)
	oldest := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{oldest.AddDate(0, 0, 3), oldest} {
		_, err := raw.Exec("INSERT INTO states (metadata_id, state, last_updated_ts) VALUES (1, '1', ?)",
			float64(ts.Unix()))
		require.NoError(t, err)
	}

	got, err := client.OldestState(context.Background())
	require.NoError(t, err)
	require.True(t, got.Equal(oldest))
}
