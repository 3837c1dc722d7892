package history

import (
	"context"
	"sync"
	"time"

	"github.com/beariot/beariot/pkg/models"
)

// Mode selects the chart's data source.
type Mode string

const (
	ModeLive       Mode = "live"       // in-memory live series buffer
	ModeHistorical Mode = "historical" // persisted samples for a past date
)

// State is the historical fetch state. Empty is distinct from loading and
// from error: "no data recorded for that date" renders differently from
// "still fetching" and from "fetch failed".
type State string

const (
	StateLive    State = "live"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateEmpty   State = "empty"
	StateError   State = "error"
)

// ChartSource tracks whether the chart reads from the live buffer or from
// persisted history, and the fetch state of the latter.
type ChartSource struct {
	mu      sync.Mutex
	query   *QueryService
	today   func() string
	mode    Mode
	state   State
	date    string
	samples []models.HistorySample
	err     error
}

// NewChartSource creates a chart source in live mode.
func NewChartSource(query *QueryService) *ChartSource {
	return &ChartSource{
		query: query,
		today: func() string { return time.Now().Format("2006-01-02") },
		mode:  ModeLive,
		state: StateLive,
	}
}

// SelectDate switches the chart to the given date. Selecting the current
// date returns to live mode and discards any historical result set; the
// live buffer itself is untouched. Selecting a past date fetches that
// date's samples.
func (c *ChartSource) SelectDate(ctx context.Context, deviceKey, date string) {
	c.mu.Lock()
	if date == c.today() {
		c.mode = ModeLive
		c.state = StateLive
		c.date = date
		c.samples = nil
		c.err = nil
		c.mu.Unlock()
		return
	}
	c.mode = ModeHistorical
	c.state = StateLoading
	c.date = date
	c.samples = nil
	c.err = nil
	c.mu.Unlock()

	samples, err := c.query.FetchHistory(ctx, deviceKey, date)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.date != date || c.mode != ModeHistorical {
		// a newer selection superseded this fetch; drop it
		return
	}
	switch {
	case err != nil:
		c.state = StateError
		c.err = err
	case len(samples) == 0:
		c.state = StateEmpty
	default:
		c.state = StateReady
		c.samples = samples
	}
}

// Mode returns the current data-source mode.
func (c *ChartSource) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Snapshot returns the current state, date, samples and error.
func (c *ChartSource) Snapshot() (State, string, []models.HistorySample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	samples := make([]models.HistorySample, len(c.samples))
	copy(samples, c.samples)
	return c.state, c.date, samples, c.err
}
