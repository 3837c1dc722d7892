package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUpdateIntervalPeriod(t *testing.T) {
	tests := []struct {
		interval UpdateInterval
		want     time.Duration
	}{
		{Interval1s, time.Second},
		{Interval15s, 15 * time.Second},
		{Interval30s, 30 * time.Second},
		{Interval1min, time.Minute},
		{IntervalDaily, 24 * time.Hour},
		{IntervalWeek, 7 * 24 * time.Hour},
		{IntervalMonth, 30 * 24 * time.Hour},
		{IntervalYear, 365 * 24 * time.Hour},
		{UpdateInterval("bogus"), 0},
		{UpdateInterval(""), 0},
	}

	for _, tt := range tests {
		if got := tt.interval.Period(); got != tt.want {
			t.Errorf("Period(%q) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestNewAutoTag(t *testing.T) {
	tag := NewAutoTag(3)

	if tag.Label != "tag3" {
		t.Errorf("expected label tag3, got %s", tag.Label)
	}
	if tag.Script != "" {
		t.Error("auto tag should have an empty script")
	}
	if tag.UpdateInterval != Interval1min {
		t.Errorf("expected 1min interval, got %s", tag.UpdateInterval)
	}
	if !tag.Record || !tag.Sync {
		t.Error("auto tag should have record and sync enabled")
	}
	if tag.Alarm != AlarmOff {
		t.Errorf("expected alarm off, got %s", tag.Alarm)
	}
	if tag.SpLow != "25" || tag.SpHigh != "35" {
		t.Errorf("unexpected setpoints: %s..%s", tag.SpLow, tag.SpHigh)
	}
	if tag.Critical != "Low" {
		t.Errorf("expected critical Low, got %s", tag.Critical)
	}
	if tag.X != 160 || tag.Y != 160 {
		t.Errorf("expected position (160,160), got (%g,%g)", tag.X, tag.Y)
	}
}

func TestDeviceClone(t *testing.T) {
	d := &Device{
		ID:   "dev1",
		Name: "Boiler",
		Tags: []Tag{{Label: "tag1"}, {Label: "tag2"}},
	}

	c := d.Clone()
	c.Name = "Pump"
	c.Tags[0].Label = "changed"

	if d.Name != "Boiler" {
		t.Error("clone shares the device struct")
	}
	if d.Tags[0].Label != "tag1" {
		t.Error("clone shares the tag slice")
	}

	var nilDevice *Device
	if nilDevice.Clone() != nil {
		t.Error("cloning nil should return nil")
	}
}

func TestHistorySampleMarshalFlat(t *testing.T) {
	s := HistorySample{
		DeviceID:  "dev1",
		Date:      "2026-08-28",
		Time:      "14:05",
		Timestamp: 1787654321000,
		Values:    map[string]float64{"tag1": 26.5, "tag2": 7},
	}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("unmarshal flat failed: %v", err)
	}

	if flat["deviceId"] != "dev1" {
		t.Errorf("expected deviceId dev1, got %v", flat["deviceId"])
	}
	if flat["date"] != "2026-08-28" || flat["time"] != "14:05" {
		t.Errorf("unexpected date fields: %v %v", flat["date"], flat["time"])
	}
	if flat["tag1"] != 26.5 {
		t.Errorf("expected tag1 26.5, got %v", flat["tag1"])
	}
	if _, ok := flat["values"]; ok {
		t.Error("sample should marshal flat, not nested")
	}
}

func TestHistorySampleUnmarshal(t *testing.T) {
	raw := []byte(`{"_id":"abc","deviceId":"dev1","date":"2026-08-28","time":"14:05","timestamp":1787654321000,"tag1":26.5,"note":"text"}`)

	var s HistorySample
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if s.DeviceID != "dev1" || s.Date != "2026-08-28" || s.Time != "14:05" {
		t.Errorf("unexpected fixed fields: %+v", s)
	}
	if s.Timestamp != 1787654321000 {
		t.Errorf("expected timestamp 1787654321000, got %d", s.Timestamp)
	}
	if len(s.Values) != 1 || s.Values["tag1"] != 26.5 {
		t.Errorf("expected only tag1=26.5, got %v", s.Values)
	}
}
