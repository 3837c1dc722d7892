package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/history"
	"github.com/beariot/beariot/internal/scripting"
	"github.com/beariot/beariot/pkg/models"
)

// ResultCallback is invoked after a tag evaluation yields a numeric value,
// outside the scheduler's lock.
type ResultCallback func(device *models.Device, tag models.Tag, value float64)

// Scheduler runs one device's tags on their configured cadences and feeds
// the live buffer and the history logger.
type Scheduler struct {
	mu sync.Mutex

	device    *models.Device
	persisted bool

	evaluator scripting.Evaluator
	clock     *TagClock
	results   *ResultStore
	live      *LiveBuffer
	histLog   *history.Logger

	tickInterval  time.Duration
	flushInterval time.Duration
	lastFlush     time.Time

	callback ResultCallback
	logger   *zap.Logger

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for one device view.
func NewScheduler(evaluator scripting.Evaluator, histLog *history.Logger, tickInterval, flushInterval time.Duration, logger *zap.Logger) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	return &Scheduler{
		evaluator:     evaluator,
		clock:         NewTagClock(),
		results:       NewResultStore(),
		live:          NewLiveBuffer(),
		histLog:       histLog,
		tickInterval:  tickInterval,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// SetCallback registers the per-result callback (threshold alarms).
func (s *Scheduler) SetCallback(cb ResultCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// SetDevice swaps the scheduled device. The tag clock and cached results
// are reset so the new tag set starts fresh; persisted controls whether
// history writes happen (unsaved devices are evaluated but never logged).
func (s *Scheduler) SetDevice(device *models.Device, persisted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = device.Clone()
	s.persisted = persisted
	s.clock.Reset()
	s.results.Clear()
}

// Device returns a copy of the scheduled device, or nil.
func (s *Scheduler) Device() *models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	return s.device.Clone()
}

// Results returns the latest per-tag results.
func (s *Scheduler) Results() map[int]TagResult {
	return s.results.Snapshot()
}

// Live returns the live chart buffer contents.
func (s *Scheduler) Live() []LivePoint {
	return s.live.Points()
}

// Start begins the tick loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.lastFlush = time.Now()
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, stopCh)

	s.logger.Info("Scheduler started",
		zap.Duration("tick", s.tickInterval),
		zap.Duration("flush", s.flushInterval))
}

// Stop halts the tick loop and waits for it to exit. In-flight tag
// evaluations finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// Each tick runs detached so a slow script cannot
			// stall later ticks of faster tags.
			go s.tick(ctx, now)
		}
	}
}

type dueTag struct {
	index int
	tag   models.Tag
}

// maxConcurrentEvals bounds the per-tick evaluation fan-out so a device
// with many due tags cannot spawn unbounded script states at once.
const maxConcurrentEvals = 8

// tick evaluates every due tag concurrently, publishes the results, and
// flushes a history sample when the flush interval has elapsed.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return
	}
	device := s.device.Clone()

	var due []dueTag
	for i, tag := range device.Tags {
		if s.clock.IsDue(i, tag.UpdateInterval.Period(), now) {
			s.clock.MarkRun(i, now)
			due = append(due, dueTag{index: i, tag: tag})
		}
	}

	flush := false
	if s.persisted && now.Sub(s.lastFlush) >= s.flushInterval {
		s.lastFlush = now
		flush = true
	}
	cb := s.callback
	s.mu.Unlock()

	updated := s.evaluateDue(ctx, device, due, cb)

	// A live point is only appended when at least one tag actually ran
	// this tick, so idle ticks do not flood the 30-entry window.
	if updated > 0 {
		if values := s.numericValues(device, false); len(values) > 0 {
			s.live.Append(LivePoint{Time: now.UnixMilli(), Values: values})
		}
	}

	if flush {
		values := s.numericValues(device, true)
		s.histLog.Log(ctx, device.ID, values, now)
	}
}

// evaluateDue runs the due tags in parallel and stores their outcomes. It
// returns the number of tags whose result changed.
func (s *Scheduler) evaluateDue(ctx context.Context, device *models.Device, due []dueTag, cb ResultCallback) int {
	if len(due) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	updated := 0
	sem := make(chan struct{}, maxConcurrentEvals)

	for _, d := range due {
		wg.Add(1)
		go func(d dueTag) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			value, err := s.evaluator.Evaluate(ctx, d.tag.Script)
			if err != nil {
				if errors.Is(err, scripting.ErrEmptyScript) {
					return
				}
				var evalErr *scripting.EvaluationError
				if !errors.As(err, &evalErr) {
					evalErr = &scripting.EvaluationError{Message: err.Error()}
				}
				s.results.SetError(d.index, evalErr)
				s.logger.Debug("Tag evaluation failed",
					zap.String("device", device.ID),
					zap.String("tag", d.tag.Label),
					zap.Error(evalErr))
				mu.Lock()
				updated++
				mu.Unlock()
				return
			}

			s.results.SetValue(d.index, value)
			mu.Lock()
			updated++
			mu.Unlock()

			if cb != nil {
				if num, ok := s.results.Numeric(d.index); ok {
					cb(device, d.tag, num)
				}
			}
		}(d)
	}

	wg.Wait()
	return updated
}

// numericValues collects the latest finite numeric result per tag label.
// When recordOnly is set, tags with recording switched off are skipped.
func (s *Scheduler) numericValues(device *models.Device, recordOnly bool) map[string]float64 {
	values := make(map[string]float64)
	for i, tag := range device.Tags {
		if recordOnly && !tag.Record {
			continue
		}
		if num, ok := s.results.Numeric(i); ok {
			values[tag.Label] = num
		}
	}
	return values
}

// EvaluateOnce runs a single script outside the tick loop, for the editor's
// test button.
func (s *Scheduler) EvaluateOnce(ctx context.Context, script string) (interface{}, error) {
	return s.evaluator.Evaluate(ctx, script)
}
