// Package history owns the durable side of charting: the logger that
// commits samples on a throttled cadence and the query service that reads
// them back for a selected date.
package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/pkg/models"
)

// Logger writes history samples as create operations against the history
// collection. Writes are best-effort telemetry: a failure is logged and
// never retried, and never affects scheduler state.
type Logger struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewLogger creates a history logger over the given store.
func NewLogger(store docstore.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

// Log persists one sample holding the given recordable tag values. A sample
// with no values is skipped entirely; no empty samples are persisted.
// It reports whether a write was attempted.
func (l *Logger) Log(ctx context.Context, deviceID string, values map[string]float64, now time.Time) bool {
	if len(values) == 0 {
		return false
	}

	sample := models.HistorySample{
		DeviceID:  deviceID,
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04"),
		Timestamp: now.UnixMilli(),
		Values:    values,
	}

	if _, err := l.store.CreateDocument(ctx, docstore.CollectionHistory, sample); err != nil {
		l.logger.Warn("history sample write failed",
			zap.String("device_id", deviceID),
			zap.String("date", sample.Date),
			zap.Error(err),
		)
	}
	return true
}
