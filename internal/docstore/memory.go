package docstore

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by the dashboard when no
// document proxy is configured. It mirrors the proxy's semantics: documents
// are schemaless JSON objects matched by field equality.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]map[string]interface{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]map[string]interface{})}
}

func toDocument(data interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func matches(doc map[string]interface{}, query Query) bool {
	for field, want := range query {
		if !reflect.DeepEqual(doc[field], want) {
			return false
		}
	}
	return true
}

// CreateDocument stores the document, assigning an _id when absent.
func (m *Memory) CreateDocument(_ context.Context, collection string, data interface{}) (json.RawMessage, error) {
	doc, err := toDocument(data)
	if err != nil {
		return nil, &PersistenceError{Op: "createDocument", Collection: collection, Err: err}
	}
	if id, ok := doc["_id"].(string); !ok || id == "" {
		doc["_id"] = uuid.New().String()
	}

	m.mu.Lock()
	m.collections[collection] = append(m.collections[collection], doc)
	m.mu.Unlock()

	return json.Marshal(doc)
}

// ReadDocument returns all matching documents.
func (m *Memory) ReadDocument(_ context.Context, collection string, query Query) ([]json.RawMessage, error) {
	normalized, err := toDocument(query)
	if err != nil {
		return nil, &PersistenceError{Op: "readDocument", Collection: collection, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]json.RawMessage, 0)
	for _, doc := range m.collections[collection] {
		if matches(doc, normalized) {
			raw, err := json.Marshal(doc)
			if err != nil {
				return nil, &PersistenceError{Op: "readDocument", Collection: collection, Err: err}
			}
			results = append(results, raw)
		}
	}
	return results, nil
}

// UpdateDocument merges data into every matching document. _id is never
// overwritten.
func (m *Memory) UpdateDocument(_ context.Context, collection string, query Query, data interface{}) error {
	normalizedQuery, err := toDocument(query)
	if err != nil {
		return &PersistenceError{Op: "updateDocument", Collection: collection, Err: err}
	}
	patch, err := toDocument(data)
	if err != nil {
		return &PersistenceError{Op: "updateDocument", Collection: collection, Err: err}
	}
	delete(patch, "_id")

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.collections[collection] {
		if matches(doc, normalizedQuery) {
			for field, value := range patch {
				doc[field] = value
			}
		}
	}
	return nil
}

// DeleteDocument removes every matching document.
func (m *Memory) DeleteDocument(_ context.Context, collection string, query Query) error {
	normalized, err := toDocument(query)
	if err != nil {
		return &PersistenceError{Op: "deleteDocument", Collection: collection, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.collections[collection][:0]
	for _, doc := range m.collections[collection] {
		if !matches(doc, normalized) {
			kept = append(kept, doc)
		}
	}
	m.collections[collection] = kept
	return nil
}

// Count reports how many documents a collection holds.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

var _ Store = (*Memory)(nil)
