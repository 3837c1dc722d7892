package scheduler

import (
	"encoding/json"
	"math"
	"strconv"
	"sync"

	"github.com/beariot/beariot/internal/scripting"
)

// TagResult is the latest outcome for one tag: a value or an evaluation
// error, never both.
type TagResult struct {
	Value interface{}
	Err   *scripting.EvaluationError
}

// ResultStore is the mutable mapping of tag index to latest result. Tag
// evaluations run concurrently, so writes and reads are synchronized.
type ResultStore struct {
	mu      sync.RWMutex
	results map[int]TagResult
}

// NewResultStore creates an empty result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[int]TagResult)}
}

// SetValue records a success for the tag, clearing any prior error.
func (s *ResultStore) SetValue(index int, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[index] = TagResult{Value: value}
}

// SetError records a failure for the tag, clearing any prior value.
func (s *ResultStore) SetError(index int, err *scripting.EvaluationError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[index] = TagResult{Err: err}
}

// Get returns the latest result for the tag, if any.
func (s *ResultStore) Get(index int) (TagResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[index]
	return r, ok
}

// Numeric returns the tag's latest value as a finite float64, when it has
// one and it parses as such.
func (s *ResultStore) Numeric(index int) (float64, bool) {
	s.mu.RLock()
	r, ok := s.results[index]
	s.mu.RUnlock()
	if !ok || r.Err != nil {
		return 0, false
	}
	return toFinite(r.Value)
}

// Snapshot returns a copy of all current results.
func (s *ResultStore) Snapshot() map[int]TagResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]TagResult, len(s.results))
	for index, r := range s.results {
		out[index] = r
	}
	return out
}

// Clear drops all results, used when the tag list is reindexed.
func (s *ResultStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[int]TagResult)
}

func toFinite(v interface{}) (float64, bool) {
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int64:
		f = float64(value)
	case string:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// LiveBufferCap bounds the live series buffer; appending beyond it evicts
// the oldest entry.
const LiveBufferCap = 30

// LivePoint is one cross-tag snapshot for real-time charting. On the wire
// it is flat: {time, <label>: <value>, ...}.
type LivePoint struct {
	Time   int64 // epoch milliseconds
	Values map[string]float64
}

// MarshalJSON flattens the point for the chart.
func (p LivePoint) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(p.Values)+1)
	m["time"] = p.Time
	for label, value := range p.Values {
		m[label] = value
	}
	return json.Marshal(m)
}

// LiveBuffer is the bounded FIFO of live snapshots. It is never persisted.
// Ticks append while chart requests read, so access is synchronized.
type LiveBuffer struct {
	mu     sync.RWMutex
	points []LivePoint
}

// NewLiveBuffer creates an empty buffer.
func NewLiveBuffer() *LiveBuffer {
	return &LiveBuffer{}
}

// Append adds a snapshot, evicting the oldest entry once the cap is hit.
func (b *LiveBuffer) Append(p LivePoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = append(b.points, p)
	if len(b.points) > LiveBufferCap {
		b.points = b.points[len(b.points)-LiveBufferCap:]
	}
}

// Points returns a copy of the buffered snapshots, oldest first.
func (b *LiveBuffer) Points() []LivePoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LivePoint, len(b.points))
	copy(out, b.points)
	return out
}

// Len reports how many snapshots are buffered.
func (b *LiveBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points)
}

// Clear discards all buffered snapshots.
func (b *LiveBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = nil
}
