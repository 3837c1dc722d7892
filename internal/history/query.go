package history

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/pkg/models"
)

// QueryService retrieves persisted samples for a device and a calendar
// date. Samples may have been written out of order; ordering is restored
// here by sorting on timestamp.
type QueryService struct {
	store docstore.Store
}

// NewQueryService creates a query service over the given store.
func NewQueryService(store docstore.Store) *QueryService {
	return &QueryService{store: store}
}

// FetchHistory returns the samples for (deviceKey, date), ascending by
// timestamp. An empty result is a valid state, not an error.
func (q *QueryService) FetchHistory(ctx context.Context, deviceKey, date string) ([]models.HistorySample, error) {
	docs, err := q.store.ReadDocument(ctx, docstore.CollectionHistory, docstore.Query{
		"deviceId": deviceKey,
		"date":     date,
	})
	if err != nil {
		return nil, err
	}

	samples := make([]models.HistorySample, 0, len(docs))
	for _, doc := range docs {
		var s models.HistorySample
		if err := json.Unmarshal(doc, &s); err != nil {
			continue // malformed sample, skip rather than fail the chart
		}
		samples = append(samples, s)
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp < samples[j].Timestamp
	})
	return samples, nil
}
