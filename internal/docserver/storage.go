// Package docserver implements the document proxy: a thin authenticated
// HTTP facade over generic collection storage.
package docserver

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Storage is the backing store behind the proxy. Documents are schemaless
// JSON objects grouped into named collections; queries match on field
// equality.
type Storage interface {
	Create(ctx context.Context, collection string, doc map[string]interface{}) (map[string]interface{}, error)
	Read(ctx context.Context, collection string, query map[string]interface{}) ([]map[string]interface{}, error)
	Update(ctx context.Context, collection string, query, data map[string]interface{}) (int64, error)
	Delete(ctx context.Context, collection string, query map[string]interface{}) (int64, error)
	Close()
}

// MemoryStorage keeps collections in process memory. It backs development
// setups and tests when no database URL is configured.
type MemoryStorage struct {
	mu          sync.RWMutex
	collections map[string][]map[string]interface{}
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		collections: make(map[string][]map[string]interface{}),
	}
}

func matchesQuery(doc, query map[string]interface{}) bool {
	for field, want := range query {
		if !reflect.DeepEqual(doc[field], want) {
			return false
		}
	}
	return true
}

func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	raw, _ := json.Marshal(doc)
	var c map[string]interface{}
	json.Unmarshal(raw, &c)
	return c
}

func (s *MemoryStorage) Create(_ context.Context, collection string, doc map[string]interface{}) (map[string]interface{}, error) {
	stored := cloneDoc(doc)
	if _, ok := stored["_id"]; !ok {
		stored["_id"] = uuid.New().String()
	}

	s.mu.Lock()
	s.collections[collection] = append(s.collections[collection], stored)
	s.mu.Unlock()

	return cloneDoc(stored), nil
}

func (s *MemoryStorage) Read(_ context.Context, collection string, query map[string]interface{}) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]interface{}, 0)
	for _, doc := range s.collections[collection] {
		if matchesQuery(doc, query) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (s *MemoryStorage) Update(_ context.Context, collection string, query, data map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for i, doc := range s.collections[collection] {
		if !matchesQuery(doc, query) {
			continue
		}
		merged := cloneDoc(doc)
		for field, value := range data {
			if field == "_id" {
				continue
			}
			merged[field] = value
		}
		s.collections[collection][i] = merged
		updated++
	}
	return updated, nil
}

func (s *MemoryStorage) Delete(_ context.Context, collection string, query map[string]interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	kep := docs[:0]
	var deleted int64
	for _, doc := range docs {
		if matchesQuery(doc, query) {
			deleted++
			continue
		}
		kep = append(kep, doc)
	}
	s.collections[collection] = kep
	return deleted, nil
}

func (s *MemoryStorage) Close() {}

var _ Storage = (*MemoryStorage)(nil)
