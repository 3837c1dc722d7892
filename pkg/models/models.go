package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpdateInterval is a tag's configured evaluation cadence.
type UpdateInterval string

const (
	Interval1s    UpdateInterval = "1s"
	Interval15s   UpdateInterval = "15s"
	Interval30s   UpdateInterval = "30s"
	Interval1min  UpdateInterval = "1min"
	IntervalDaily UpdateInterval = "daily"
	IntervalWeek  UpdateInterval = "week"
	IntervalMonth UpdateInterval = "month"
	IntervalYear  UpdateInterval = "year"
)

// Period maps an interval to its duration. Unknown values map to zero,
// which makes the tag due on every scheduler tick.
func (i UpdateInterval) Period() time.Duration {
	switch i {
	case Interval1s:
		return time.Second
	case Interval15s:
		return 15 * time.Second
	case Interval30s:
		return 30 * time.Second
	case Interval1min:
		return time.Minute
	case IntervalDaily:
		return 24 * time.Hour
	case IntervalWeek:
		return 7 * 24 * time.Hour
	case IntervalMonth:
		return 30 * 24 * time.Hour
	case IntervalYear:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// AlarmState is the on/off switch of a tag's threshold alarm.
type AlarmState string

const (
	AlarmOn  AlarmState = "On"
	AlarmOff AlarmState = "Off"
)

// Tag is one independently scheduled scripted measurement owned by a device.
type Tag struct {
	Label          string         `json:"label"`
	Script         string         `json:"script"`
	UpdateInterval UpdateInterval `json:"updateInterval"`
	Record         bool           `json:"record"`
	Sync           bool           `json:"sync"`
	API            bool           `json:"api"`
	Line           bool           `json:"line"`
	Email          bool           `json:"email"`
	Alarm          AlarmState     `json:"alarm"`
	SpLow          string         `json:"spLow"`
	SpHigh         string         `json:"spHigh"`
	Critical       string         `json:"critical"`
	Title          string         `json:"title"`
	Alert          string         `json:"alert"`
	Description    string         `json:"description"`
	X              float64        `json:"x"`
	Y              float64        `json:"y"`
}

// NewAutoTag builds the tag auto-provisioned on each configuration save.
// ordinal is 1-based; it determines the label and the default canvas offset.
func NewAutoTag(ordinal int) Tag {
	return Tag{
		Label:          fmt.Sprintf("tag%d", ordinal),
		Script:         "",
		UpdateInterval: Interval1min,
		Record:         true,
		Sync:           true,
		Alarm:          AlarmOff,
		SpLow:          "25",
		SpHigh:         "35",
		Critical:       "Low",
		X:              100 + float64(ordinal)*20,
		Y:              100 + float64(ordinal)*20,
	}
}

// Device is the aggregate root owning tags, layout and the revision counter.
type Device struct {
	ID           string  `json:"_id"`
	Code         string  `json:"code"`
	Connection   string  `json:"connection"`
	Model        string  `json:"model"`
	IPAddr       string  `json:"ipAddr"`
	Name         string  `json:"name"`
	Remark       string  `json:"remark"`
	APICode      string  `json:"apiCode"`
	LineChannel  string  `json:"lineChannel"`
	LineID       string  `json:"lineId"`
	EmailFrom    string  `json:"emailFrom"`
	EmailPwd     string  `json:"emailPwd"`
	EmailTo      string  `json:"emailTo"`
	Status       string  `json:"status"`
	Revision     int     `json:"revision"`
	Tags         []Tag   `json:"tags"`
	ShowChart    bool    `json:"showChart"`
	ChartX       float64 `json:"chartX"`
	ChartY       float64 `json:"chartY"`
	ShowDatetime bool    `json:"showDatetime"`
	DatetimeX    float64 `json:"datetimeX"`
	DatetimeY    float64 `json:"datetimeY"`
}

// Clone returns a deep copy, safe to mutate independently.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	c.Tags = make([]Tag, len(d.Tags))
	copy(c.Tags, d.Tags)
	return &c
}

// HistorySample is one durable record of recordable tag values at a point
// in time. On the wire it is flat: the fixed fields plus one numeric field
// per tag label.
type HistorySample struct {
	DeviceID  string
	Date      string // YYYY-MM-DD
	Time      string // HH:MM
	Timestamp int64  // epoch milliseconds
	Values    map[string]float64
}

// reserved field names of the flat history wire shape
const (
	sampleFieldID        = "_id"
	sampleFieldDeviceID  = "deviceId"
	sampleFieldDate      = "date"
	sampleFieldTime      = "time"
	sampleFieldTimestamp = "timestamp"
)

// MarshalJSON flattens the sample into {deviceId, date, time, timestamp,
// <label>: <value>, ...}.
func (s HistorySample) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(s.Values)+4)
	m[sampleFieldDeviceID] = s.DeviceID
	m[sampleFieldDate] = s.Date
	m[sampleFieldTime] = s.Time
	m[sampleFieldTimestamp] = s.Timestamp
	for label, value := range s.Values {
		m[label] = value
	}
	return json.Marshal(m)
}

// UnmarshalJSON restores a sample from the flat wire shape. Non-numeric
// extra fields (such as a server-assigned _id) are ignored.
func (s *HistorySample) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.Values = make(map[string]float64)
	for key, value := range m {
		switch key {
		case sampleFieldDeviceID:
			s.DeviceID, _ = value.(string)
		case sampleFieldDate:
			s.Date, _ = value.(string)
		case sampleFieldTime:
			s.Time, _ = value.(string)
		case sampleFieldTimestamp:
			if f, ok := value.(float64); ok {
				s.Timestamp = int64(f)
			}
		case sampleFieldID:
			// server-assigned, not part of the sample
		default:
			if f, ok := value.(float64); ok {
				s.Values[key] = f
			}
		}
	}
	return nil
}
