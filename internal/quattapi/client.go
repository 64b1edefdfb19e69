// Package quattapi fetches per-day hourly insights from the Quatt cloud,
// proxied through the Home Assistant service API. One call covers one
// calendar date.
package quattapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"stooklijn/internal/model"
)

const (
	servicePath    = "/api/services/quatt/get_insights?return_response"
	requestTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
)

var (
	// ErrUnauthorized indicates the Home Assistant token is invalid.
	ErrUnauthorized = errors.New("quattapi: unauthorized (check the HA token)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("quattapi: rate limited")
)

// Client fetches insights through the Home Assistant REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given Home Assistant base URL and
// long-lived access token.
func NewClient(baseURL, token string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("quattapi: base URL is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("quattapi: token is required")
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
	}, nil
}

// insightsRequest is the service call payload.
type insightsRequest struct {
	FromDate         string `json:"from_date"`
	Timeframe        string `json:"timeframe"`
	AdvancedInsights bool   `json:"advanced_insights"`
}

// graphPoint is one entry of any of the hourly graph arrays. Fields not
// present in a given graph unmarshal to nil.
type graphPoint struct {
	Timestamp          string   `json:"timestamp"`
	HPHeat             *float64 `json:"hpHeat"`
	TemperatureOutside *float64 `json:"temperatureOutside"`
}

// insightsResponse is the raw day payload.
type insightsResponse struct {
	TotalHPHeat        float64      `json:"totalHpHeat"`
	TotalHPElectric    float64      `json:"totalHpElectric"`
	TotalBoilerHeat    float64      `json:"totalBoilerHeat"`
	AverageCOP         float64      `json:"averageCOP"`
	Graph              []graphPoint `json:"graph"`
	OutsideTemperature []graphPoint `json:"outsideTemperatureGraph"`
}

// FetchDay fetches the hourly record for one calendar date.
func (c *Client) FetchDay(ctx context.Context, date time.Time) (*model.DailyRecord, error) {
	day := model.Day(date)

	payload, err := json.Marshal(insightsRequest{
		FromDate:         day.Format(model.DateFormat),
		Timeframe:        "day",
		AdvancedInsights: true,
	})
	if err != nil {
		return nil, fmt.Errorf("quattapi: encoding request: %w", err)
	}

	body, err := c.post(ctx, servicePath, payload)
	if err != nil {
		return nil, err
	}

	raw, err := unwrapServiceResponse(body)
	if err != nil {
		return nil, err
	}

	var resp insightsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("quattapi: parsing insights for %s: %w", day.Format(model.DateFormat), err)
	}

	return buildRecord(day, resp), nil
}

// unwrapServiceResponse strips the HA service_response envelope when
// present; some proxies return the payload bare.
func unwrapServiceResponse(body []byte) (json.RawMessage, error) {
	var envelope struct {
		ServiceResponse json.RawMessage `json:"service_response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("quattapi: parsing response: %w", err)
	}
	if len(envelope.ServiceResponse) > 0 {
		return envelope.ServiceResponse, nil
	}
	return body, nil
}

// buildRecord merges the power and temperature graphs on timestamp into
// one hourly series. Hours missing either side are dropped: the detector
// needs both values.
func buildRecord(day time.Time, resp insightsResponse) *model.DailyRecord {
	rec := &model.DailyRecord{
		Date:          day,
		WindowStart:   day,
		WindowEnd:     day.AddDate(0, 0, 1),
		TotalHeat:     resp.TotalHPHeat,
		TotalElectric: resp.TotalHPElectric,
		BoilerHeat:    resp.TotalBoilerHeat,
		AverageCOP:    resp.AverageCOP,
	}
	if rec.AverageCOP == 0 && resp.TotalHPElectric > 0 {
		rec.AverageCOP = resp.TotalHPHeat / resp.TotalHPElectric
	}

	temps := make(map[string]float64, len(resp.OutsideTemperature))
	for _, p := range resp.OutsideTemperature {
		if p.TemperatureOutside != nil {
			temps[p.Timestamp] = *p.TemperatureOutside
		}
	}

	for _, p := range resp.Graph {
		if p.HPHeat == nil {
			continue
		}
		temp, ok := temps[p.Timestamp]
		if !ok {
			continue
		}
		ts, err := parseGraphTimestamp(p.Timestamp)
		if err != nil {
			continue
		}
		rec.Hours = append(rec.Hours, model.HourlySample{
			Time:        ts,
			Temperature: temp,
			Power:       *p.HPHeat,
		})
	}
	sort.Slice(rec.Hours, func(i, j int) bool { return rec.Hours[i].Time.Before(rec.Hours[j].Time) })

	return rec
}

// parseGraphTimestamp accepts the RFC 3339 variants the API emits.
func parseGraphTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("quattapi: unrecognized timestamp %q", s)
}

// post performs an authenticated POST and returns the response body.
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("quattapi: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quattapi: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("quattapi: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("quattapi: reading response: %w", err)
	}
	return body, nil
}
