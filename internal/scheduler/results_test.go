package scheduler

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/beariot/beariot/internal/scripting"
)

func TestResultStoreValueAndError(t *testing.T) {
	s := NewResultStore()

	s.SetValue(0, 42.0)
	r, ok := s.Get(0)
	if !ok || r.Value != 42.0 || r.Err != nil {
		t.Errorf("unexpected result: %+v", r)
	}

	s.SetError(0, &scripting.EvaluationError{Message: "boom"})
	r, _ = s.Get(0)
	if r.Value != nil {
		t.Error("an error should clear the prior value")
	}
	if r.Err == nil || r.Err.Message != "boom" {
		t.Errorf("expected boom error, got %+v", r.Err)
	}

	s.SetValue(0, 1.0)
	r, _ = s.Get(0)
	if r.Err != nil {
		t.Error("a value should clear the prior error")
	}
}

func TestResultStoreNumeric(t *testing.T) {
	s := NewResultStore()

	tests := []struct {
		value  interface{}
		want   float64
		wantOK bool
	}{
		{26.5, 26.5, true},
		{float32(2), 2, true},
		{int(7), 7, true},
		{int64(9), 9, true},
		{"33.5", 33.5, true},
		{"not a number", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
	}

	for i, tt := range tests {
		s.SetValue(i, tt.value)
		got, ok := s.Numeric(i)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Numeric(%v) = (%g, %v), want (%g, %v)", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestResultStoreNumericSkipsErrors(t *testing.T) {
	s := NewResultStore()
	s.SetError(0, &scripting.EvaluationError{Message: "boom"})

	if _, ok := s.Numeric(0); ok {
		t.Error("a failed tag should have no numeric value")
	}
	if _, ok := s.Numeric(99); ok {
		t.Error("an unknown tag should have no numeric value")
	}
}

func TestLiveBufferFIFO(t *testing.T) {
	b := NewLiveBuffer()

	for i := 0; i < LiveBufferCap+10; i++ {
		b.Append(LivePoint{Time: int64(i)})
	}

	if b.Len() != LiveBufferCap {
		t.Fatalf("expected %d points, got %d", LiveBufferCap, b.Len())
	}

	points := b.Points()
	if points[0].Time != 10 {
		t.Errorf("expected oldest point 10 after eviction, got %d", points[0].Time)
	}
	if points[len(points)-1].Time != int64(LiveBufferCap+9) {
		t.Errorf("expected newest point %d, got %d", LiveBufferCap+9, points[len(points)-1].Time)
	}
}

func TestLiveBufferPointsIsACopy(t *testing.T) {
	b := NewLiveBuffer()
	b.Append(LivePoint{Time: 1})

	points := b.Points()
	points[0].Time = 99

	if b.Points()[0].Time != 1 {
		t.Error("Points should return a copy")
	}
}

func TestLivePointMarshalFlat(t *testing.T) {
	p := LivePoint{
		Time:   1787654321000,
		Values: map[string]float64{"tag1": 26.5},
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if flat["time"] != float64(1787654321000) {
		t.Errorf("expected time field, got %v", flat["time"])
	}
	if flat["tag1"] != 26.5 {
		t.Errorf("expected tag1 26.5, got %v", flat["tag1"])
	}
}
