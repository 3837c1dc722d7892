package history

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/docstore"
)

func seedSamples(t *testing.T, store docstore.Store) {
	t.Helper()
	l := NewLogger(store, zap.NewNop())
	base := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	// written out of chronological order on purpose
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		if !l.Log(context.Background(), "dev1", map[string]float64{"tag1": float64(offset.Hours())}, base.Add(offset)) {
			t.Fatal("seed write failed")
		}
	}
	l.Log(context.Background(), "dev1", map[string]float64{"tag1": 99}, base.Add(25*time.Hour))
	l.Log(context.Background(), "dev2", map[string]float64{"tag1": 50}, base)
}

func TestFetchHistorySortedByTimestamp(t *testing.T) {
	store := docstore.NewMemory()
	seedSamples(t, store)

	q := NewQueryService(store)
	samples, err := q.FetchHistory(context.Background(), "dev1", "2026-08-27")
	if err != nil {
		t.Fatalf("FetchHistory failed: %v", err)
	}

	if len(samples) != 3 {
		t.Fatalf("expected 3 samples for dev1 on 2026-08-27, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i-1].Timestamp > samples[i].Timestamp {
			t.Fatal("samples should be ascending by timestamp")
		}
	}
	if samples[0].Values["tag1"] != 0 || samples[2].Values["tag1"] != 2 {
		t.Errorf("unexpected ordering: %v", samples)
	}
}

func TestFetchHistoryEmptyResult(t *testing.T) {
	store := docstore.NewMemory()
	seedSamples(t, store)

	q := NewQueryService(store)
	samples, err := q.FetchHistory(context.Background(), "dev1", "2020-01-01")
	if err != nil {
		t.Fatalf("an empty day should not be an error: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}
