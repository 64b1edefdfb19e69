// Package daemon provides the long-running background analysis service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"stooklijn/internal/model"
)

var log = logrus.StandardLogger()

// Runner executes one full analysis pass.
type Runner interface {
	Run(ctx context.Context) (*model.AnalysisResult, error)
}

// Config controls the daemon runtime behavior.
type Config struct {
	Interval     time.Duration
	Addr         string
	EventsBuffer int
}

// Summary is a compact analysis state for status/event payloads.
type Summary struct {
	At            time.Time `json:"at"`
	KneeTier      string    `json:"knee_tier"`
	KneeTemp      float64   `json:"knee_temp"`
	KneePower     float64   `json:"knee_power,omitempty"`
	DaysCache     int       `json:"days_cache"`
	DaysAPI       int       `json:"days_api"`
	DaysRecorder  int       `json:"days_recorder_only"`
	HeatLossWPerC float64   `json:"heat_loss_w_per_c,omitempty"`
	AverageCOP    float64   `json:"average_cop,omitempty"`
}

// Event is emitted whenever an analysis pass completes or fails.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Error     string    `json:"error,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastRunAt       time.Time `json:"last_run_at"`
	RunIntervalSec  int       `json:"run_interval_sec"`
	RunCount        int64     `json:"run_count"`
	Running         bool      `json:"running"`
	Summary         Summary   `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg    Config
	runner Runner

	// runMu guards against overlapping analyses: a trigger that arrives
	// while a run is in flight is a no-op, never a queued second run.
	runMu sync.Mutex

	mu          sync.RWMutex
	startedAt   time.Time
	lastRunAt   time.Time
	runCount    int64
	running     bool
	lastError   string
	result      *model.AnalysisResult
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config, runner Runner) *Service {
	if cfg.Interval < time.Minute {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 50
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8790"
	}

	return &Service{
		cfg:       cfg,
		runner:    runner,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Run starts HTTP endpoints and periodic analyses until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/result", s.handleResult)
	mux.HandleFunc("/v1/run", s.handleRun)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":     s.cfg.Addr,
		"interval": s.cfg.Interval.String(),
	}).Info("daemon started")

	// Run once immediately so status is useful before the first tick.
	s.runOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.runOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// runOnce executes a single analysis pass. Returns false when a run was
// already in flight.
func (s *Service) runOnce(ctx context.Context) bool {
	if !s.runMu.TryLock() {
		log.Debug("analysis already in flight, trigger ignored")
		return false
	}
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	result, err := s.runner.Run(ctx)
	now := time.Now()

	var ev Event

	s.mu.Lock()
	s.running = false
	s.lastRunAt = now
	s.runCount++
	s.nextEventID++
	if err != nil {
		s.lastError = err.Error()
		ev = Event{ID: s.nextEventID, Type: "analysis_failed", Timestamp: now, Error: err.Error()}
	} else {
		s.lastError = ""
		s.result = result
		ev = Event{ID: s.nextEventID, Type: "analysis_complete", Timestamp: now, Summary: summarize(result)}
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).Error("scheduled analysis failed")
	}

	s.publishEvent(ev)
	return true
}

func summarize(result *model.AnalysisResult) Summary {
	sum := Summary{
		At:           result.RanAt,
		KneeTier:     result.Knee.Tier.String(),
		KneeTemp:     result.Knee.Temperature,
		KneePower:    result.Knee.Power,
		DaysCache:    result.Counts.Cache,
		DaysAPI:      result.Counts.API,
		DaysRecorder: result.Counts.RecorderOnly,
	}
	if result.HeatLoss != nil {
		sum.HeatLossWPerC = result.HeatLoss.Coefficient
	}
	if result.AverageCOP != nil {
		sum.AverageCOP = *result.AverageCOP
	}
	return sum
}

func (s *Service) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		StartedAt:       s.startedAt,
		LastRunAt:       s.lastRunAt,
		RunIntervalSec:  int(s.cfg.Interval.Seconds()),
		RunCount:        s.runCount,
		Running:         s.running,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
	if s.result != nil {
		st.Summary = summarize(s.result)
	}
	return st
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}

func (s *Service) handleResult(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	result := s.result
	s.mu.RUnlock()

	if result == nil {
		http.Error(w, "no analysis completed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	started := s.runOnce(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if !started {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "already_running"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current state immediately.
	current := Event{
		Type:      "status",
		Timestamp: time.Now(),
		Summary:   s.status().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
