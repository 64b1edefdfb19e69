package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"stooklijn/internal/model"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	result  *model.AnalysisResult
	runErr  error
	started chan struct{}
}

func (f *fakeRunner) Run(_ context.Context) (*model.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.result, f.runErr
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		RanAt: time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC),
		Knee: model.KneeResult{
			Tier:        model.TierPrimary,
			Temperature: 1.5,
			Power:       2800,
		},
		Counts: model.SourceCounts{Cache: 300, API: 5, RecorderOnly: 60},
	}
}

func TestRunOnceRecordsResult(t *testing.T) {
	runner := &fakeRunner{result: testResult()}
	s := New(Config{Interval: time.Hour}, runner)

	if !s.runOnce(context.Background()) {
		t.Fatal("runOnce returned false with no run in flight")
	}

	st := s.status()
	if st.RunCount != 1 {
		t.Fatalf("RunCount = %d, want 1", st.RunCount)
	}
	if st.LastError != "" {
		t.Fatalf("LastError = %q, want empty", st.LastError)
	}
	if st.Summary.KneeTier != "primary" {
		t.Fatalf("Summary.KneeTier = %q, want primary", st.Summary.KneeTier)
	}
	if st.Summary.KneeTemp != 1.5 {
		t.Fatalf("Summary.KneeTemp = %v, want 1.5", st.Summary.KneeTemp)
	}
	if st.Summary.DaysCache != 300 || st.Summary.DaysAPI != 5 {
		t.Fatalf("Summary counts = %d/%d, want 300/5", st.Summary.DaysCache, st.Summary.DaysAPI)
	}
}

func TestConcurrentTriggerIsNoOp(t *testing.T) {
	runner := &fakeRunner{
		result:  testResult(),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s := New(Config{Interval: time.Hour}, runner)

	done := make(chan bool)
	go func() { done <- s.runOnce(context.Background()) }()
	<-runner.started

	// A second trigger while the first run holds the lock must not
	// start another run.
	if s.runOnce(context.Background()) {
		t.Fatal("second runOnce started while first was in flight")
	}

	close(runner.block)
	if !<-done {
		t.Fatal("first runOnce reported not started")
	}
	if got := runner.callCount(); got != 1 {
		t.Fatalf("runner called %d times, want 1", got)
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{Interval: time.Hour, EventsBuffer: 2}, &fakeRunner{})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}
