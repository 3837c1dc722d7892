// Package alerts evaluates tag threshold alarms against fresh scheduler
// results and dispatches notifications on the channels each tag enables.
package alerts

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/config"
	"github.com/beariot/beariot/pkg/models"
)

// Event is one triggered threshold alarm.
type Event struct {
	DeviceID  string    `json:"device_id"`
	TagLabel  string    `json:"tag_label"`
	Value     float64   `json:"value"`
	SpLow     float64   `json:"sp_low"`
	SpHigh    float64   `json:"sp_high"`
	Breach    string    `json:"breach"` // "low" or "high"
	Critical  string    `json:"critical"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Channels the notification should go out on, derived from the tag flags.
type Channels struct {
	Line  bool
	Email bool
}

// Notifier sends alarm notifications.
type Notifier interface {
	Name() string
	Notify(device *models.Device, event *Event) error
}

// Engine checks recorded results against tag setpoints. One alarm per
// (device, tag) within the cooldown window.
type Engine struct {
	config    *config.AlertsConfig
	logger    *zap.Logger
	mu        sync.Mutex
	cooldowns map[string]time.Time
	line      Notifier
	email     Notifier
	always    []Notifier
}

// NewEngine creates an alarm engine.
func NewEngine(cfg *config.AlertsConfig, logger *zap.Logger) *Engine {
	return &Engine{
		config:    cfg,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
	}
}

// SetLineNotifier sets the notifier used when a tag has the line flag.
func (e *Engine) SetLineNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.line = n
}

// SetEmailNotifier sets the notifier used when a tag has the email flag.
func (e *Engine) SetEmailNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.email = n
}

// AddNotifier adds a notifier that fires for every alarm regardless of tag
// flags (webhook, console).
func (e *Engine) AddNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.always = append(e.always, n)
}

// Check evaluates one fresh numeric result against the tag's setpoints and
// dispatches notifications on breach. It never blocks the caller on
// notification delivery.
func (e *Engine) Check(device *models.Device, tag models.Tag, value float64) {
	if e == nil || !e.config.Enabled || tag.Alarm != models.AlarmOn {
		return
	}

	low, lowOK := parseSetpoint(tag.SpLow)
	high, highOK := parseSetpoint(tag.SpHigh)

	var breach string
	switch {
	case lowOK && value < low:
		breach = "low"
	case highOK && value > high:
		breach = "high"
	default:
		return
	}

	key := device.ID + ":" + tag.Label
	now := time.Now()

	e.mu.Lock()
	if last, ok := e.cooldowns[key]; ok && now.Sub(last) < e.config.Cooldown {
		e.mu.Unlock()
		return
	}
	e.cooldowns[key] = now
	line := e.line
	email := e.email
	always := make([]Notifier, len(e.always))
	copy(always, e.always)
	e.mu.Unlock()

	event := &Event{
		DeviceID:  device.ID,
		TagLabel:  tag.Label,
		Value:     value,
		SpLow:     low,
		SpHigh:    high,
		Breach:    breach,
		Critical:  tag.Critical,
		Title:     tag.Title,
		Message:   formatMessage(tag, value, breach),
		CreatedAt: now,
	}

	targets := always
	if tag.Line && line != nil {
		targets = append(targets, line)
	}
	if tag.Email && email != nil {
		targets = append(targets, email)
	}

	dev := device.Clone()
	for _, n := range targets {
		go func(n Notifier) {
			if err := n.Notify(dev, event); err != nil {
				e.logger.Warn("alarm notification failed",
					zap.String("notifier", n.Name()),
					zap.String("device_id", event.DeviceID),
					zap.String("tag", event.TagLabel),
					zap.Error(err),
				)
			}
		}(n)
	}
}

func parseSetpoint(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func formatMessage(tag models.Tag, value float64, breach string) string {
	if tag.Alert != "" {
		return tag.Alert
	}
	return fmt.Sprintf("%s value %g breached the %s setpoint", tag.Label, value, breach)
}
