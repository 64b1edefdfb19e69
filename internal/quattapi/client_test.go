package quattapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const dayPayload = `{
	"service_response": {
		"totalHpHeat": 52000,
		"totalHpElectric": 13000,
		"totalBoilerHeat": 1000,
		"averageCOP": 0,
		"graph": [
			{"timestamp": "2026-01-10T08:00:00", "hpHeat": 3100},
			{"timestamp": "2026-01-10T09:00:00", "hpHeat": 2950},
			{"timestamp": "2026-01-10T10:00:00", "hpHeat": 2800}
		],
		"outsideTemperatureGraph": [
			{"timestamp": "2026-01-10T09:00:00", "temperatureOutside": -1.0},
			{"timestamp": "2026-01-10T08:00:00", "temperatureOutside": -1.5}
		]
	}
}`

func TestFetchDayParsesAndMerges(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/services/quatt/get_insights", r.URL.Path)
		require.Equal(t, "return_response", r.URL.RawQuery)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(dayPayload))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-token")
	require.NoError(t, err)

	date := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	rec, err := client.FetchDay(context.Background(), date)
	require.NoError(t, err)

	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, "2026-01-10", gotBody["from_date"])
	require.Equal(t, "day", gotBody["timeframe"])

	require.Equal(t, date, rec.Date)
	require.Equal(t, 52000.0, rec.TotalHeat)
	// Zero COP in the payload is recomputed from the totals.
	require.InDelta(t, 4.0, rec.AverageCOP, 1e-9)

	// The 10:00 hour has no temperature and must be dropped; the rest
	// are merged and sorted.
	require.Len(t, rec.Hours, 2)
	require.Equal(t, -1.5, rec.Hours[0].Temperature)
	require.Equal(t, 3100.0, rec.Hours[0].Power)
	require.True(t, rec.Hours[0].Time.Before(rec.Hours[1].Time))
}

func TestFetchDayBareResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"totalHpHeat": 1000, "totalHpElectric": 500, "averageCOP": 2.0}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "tok")
	require.NoError(t, err)

	rec, err := client.FetchDay(context.Background(), time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Equal(t, 1000.0, rec.TotalHeat)
	require.Equal(t, 2.0, rec.AverageCOP)
	require.Empty(t, rec.Hours)
}

func TestFetchDayErrorMapping(t *testing.T) {
	tests := []struct {
		status  int
		wantErr error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		client, err := NewClient(srv.URL, "tok")
		require.NoError(t, err)

		_, err = client.FetchDay(context.Background(), time.Now().AddDate(0, 0, -1))
		require.ErrorIs(t, err, tt.wantErr, "status %d", tt.status)
		srv.Close()
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "tok")
	require.Error(t, err)

	_, err = NewClient("http://ha.local:8123", "  ")
	require.Error(t, err)

	c, err := NewClient("http://ha.local:8123/", "tok")
	require.NoError(t, err)
	require.Equal(t, "http://ha.local:8123", c.baseURL)
}

func TestParseGraphTimestamp(t *testing.T) {
	for _, s := range []string{
		"2026-01-10T08:00:00Z",
		"2026-01-10T08:00:00",
		"2026-01-10 08:00:00",
	} {
		ts, err := parseGraphTimestamp(s)
		require.NoError(t, err, s)
		require.Equal(t, 8, ts.Hour())
	}

	_, err := parseGraphTimestamp("10-01-2026")
	require.Error(t, err)
}
