package scheduler

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/internal/history"
	"github.com/beariot/beariot/internal/scripting"
	"github.com/beariot/beariot/pkg/models"
)

// stubEvaluator parses the script as a number, tracking call counts. The
// literal "fail" produces an evaluation error.
type stubEvaluator struct {
	mu    sync.Mutex
	calls map[string]int
}

func newStubEvaluator() *stubEvaluator {
	return &stubEvaluator{calls: make(map[string]int)}
}

func (s *stubEvaluator) Evaluate(_ context.Context, script string) (interface{}, error) {
	if script == "" {
		return nil, scripting.ErrEmptyScript
	}

	s.mu.Lock()
	s.calls[script]++
	s.mu.Unlock()

	if script == "fail" {
		return nil, &scripting.EvaluationError{Message: "stub failure"}
	}
	v, err := strconv.ParseFloat(script, 64)
	if err != nil {
		return nil, &scripting.EvaluationError{Message: err.Error()}
	}
	return v, nil
}

func (s *stubEvaluator) callCount(script string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[script]
}

func testDevice() *models.Device {
	return &models.Device{
		ID:   "dev1",
		Name: "Boiler",
		Tags: []models.Tag{
			{Label: "tag1", Script: "26.5", UpdateInterval: models.Interval1s, Record: true},
			{Label: "tag2", Script: "7", UpdateInterval: models.Interval1min, Record: false},
			{Label: "tag3", Script: "", UpdateInterval: models.Interval1s, Record: true},
		},
	}
}

func newTestScheduler(eval scripting.Evaluator, store docstore.Store) *Scheduler {
	logger := zap.NewNop()
	return NewScheduler(eval, history.NewLogger(store, logger), time.Second, time.Minute, logger)
}

func TestTickEvaluatesDueTags(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	s.SetDevice(testDevice(), true)

	s.tick(context.Background(), time.Now())

	if got, ok := s.results.Numeric(0); !ok || got != 26.5 {
		t.Errorf("expected tag1 = 26.5, got (%g, %v)", got, ok)
	}
	if got, ok := s.results.Numeric(1); !ok || got != 7 {
		t.Errorf("expected tag2 = 7, got (%g, %v)", got, ok)
	}
	if _, ok := s.results.Get(2); ok {
		t.Error("an empty script should leave no result")
	}
}

func TestTickHonorsIntervals(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	s.SetDevice(testDevice(), true)

	start := time.Now()
	s.tick(context.Background(), start)
	s.tick(context.Background(), start.Add(time.Second))
	s.tick(context.Background(), start.Add(2*time.Second))

	if got := eval.callCount("26.5"); got != 3 {
		t.Errorf("1s tag should run every tick, ran %d times", got)
	}
	if got := eval.callCount("7"); got != 1 {
		t.Errorf("1min tag should run once within three 1s ticks, ran %d times", got)
	}
}

func TestTickRecordsEvaluationErrors(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	dev := testDevice()
	dev.Tags[0].Script = "fail"
	s.SetDevice(dev, true)

	s.tick(context.Background(), time.Now())

	r, ok := s.results.Get(0)
	if !ok || r.Err == nil {
		t.Fatalf("expected a stored error, got %+v", r)
	}
	if r.Err.Message != "stub failure" {
		t.Errorf("unexpected error message: %s", r.Err.Message)
	}
}

func TestTickAppendsLivePoint(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	s.SetDevice(testDevice(), true)

	now := time.Now()
	s.tick(context.Background(), now)

	points := s.Live()
	if len(points) != 1 {
		t.Fatalf("expected 1 live point, got %d", len(points))
	}
	if points[0].Time != now.UnixMilli() {
		t.Errorf("live point time mismatch: %d vs %d", points[0].Time, now.UnixMilli())
	}
	// Live points include non-recording tags; recording only gates history.
	if points[0].Values["tag1"] != 26.5 || points[0].Values["tag2"] != 7 {
		t.Errorf("unexpected live values: %v", points[0].Values)
	}
}

func TestTickFlushesHistoryForRecordingTags(t *testing.T) {
	eval := newStubEvaluator()
	store := docstore.NewMemory()
	s := newTestScheduler(eval, store)
	s.SetDevice(testDevice(), true)

	// lastFlush is the zero time, so the first tick flushes.
	s.tick(context.Background(), time.Now())

	if got := store.Count(docstore.CollectionHistory); got != 1 {
		t.Fatalf("expected 1 history sample, got %d", got)
	}

	docs, err := store.ReadDocument(context.Background(), docstore.CollectionHistory, docstore.Query{"deviceId": "dev1"})
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected the sample to be readable, got %d docs (%v)", len(docs), err)
	}

	var sample models.HistorySample
	if err := sample.UnmarshalJSON(docs[0]); err != nil {
		t.Fatalf("sample decode failed: %v", err)
	}
	if sample.Values["tag1"] != 26.5 {
		t.Errorf("expected tag1 in the sample, got %v", sample.Values)
	}
	if _, ok := sample.Values["tag2"]; ok {
		t.Error("a non-recording tag must not be logged")
	}
}

func TestTickRespectsFlushInterval(t *testing.T) {
	eval := newStubEvaluator()
	store := docstore.NewMemory()
	s := newTestScheduler(eval, store)
	s.SetDevice(testDevice(), true)

	start := time.Now()
	s.tick(context.Background(), start)
	s.tick(context.Background(), start.Add(time.Second))
	s.tick(context.Background(), start.Add(30*time.Second))

	if got := store.Count(docstore.CollectionHistory); got != 1 {
		t.Errorf("expected 1 sample within the flush interval, got %d", got)
	}

	s.tick(context.Background(), start.Add(61*time.Second))
	if got := store.Count(docstore.CollectionHistory); got != 2 {
		t.Errorf("expected a second sample after the interval, got %d", got)
	}
}

func TestUnsavedDeviceIsNeverLogged(t *testing.T) {
	eval := newStubEvaluator()
	store := docstore.NewMemory()
	s := newTestScheduler(eval, store)
	s.SetDevice(testDevice(), false)

	start := time.Now()
	s.tick(context.Background(), start)
	s.tick(context.Background(), start.Add(2*time.Minute))

	if got := store.Count(docstore.CollectionHistory); got != 0 {
		t.Errorf("an unsaved device must not write history, got %d samples", got)
	}
	if len(s.Live()) == 0 {
		t.Error("an unsaved device should still produce live points")
	}
}

func TestTickWithoutDeviceIsNoop(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())

	s.tick(context.Background(), time.Now())

	if len(s.Results()) != 0 || len(s.Live()) != 0 {
		t.Error("ticking without a device should do nothing")
	}
}

func TestCallbackReceivesNumericResults(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	s.SetDevice(testDevice(), true)

	var mu sync.Mutex
	got := make(map[string]float64)
	s.SetCallback(func(_ *models.Device, tag models.Tag, value float64) {
		mu.Lock()
		got[tag.Label] = value
		mu.Unlock()
	})

	s.tick(context.Background(), time.Now())

	mu.Lock()
	defer mu.Unlock()
	if got["tag1"] != 26.5 || got["tag2"] != 7 {
		t.Errorf("unexpected callback values: %v", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	s.SetDevice(testDevice(), true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx)
	s.Stop()
	s.Stop()
}

func TestSetDeviceResetsResults(t *testing.T) {
	eval := newStubEvaluator()
	s := newTestScheduler(eval, docstore.NewMemory())
	s.SetDevice(testDevice(), true)
	s.tick(context.Background(), time.Now())

	if len(s.Results()) == 0 {
		t.Fatal("expected results before the swap")
	}

	s.SetDevice(testDevice(), true)
	if len(s.Results()) != 0 {
		t.Error("swapping the device should clear cached results")
	}
}
