// Package docstore is the operation contract against the generic document
// store: four CRUD operations over named collections, request/response over
// a network boundary. Any transport failure means "operation did not happen";
// nothing here retries automatically.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection names used by the dashboard core.
const (
	CollectionDevice  = "Device"
	CollectionHistory = "HistoryData"
	CollectionUser    = "User"
)

// Query is a field-equality filter. An empty query matches the whole
// collection.
type Query map[string]interface{}

// Store is the document-store operation contract. ReadDocument always
// returns a list; a query that narrows to one match returns a one-element
// list and a query with no match returns an empty list, which is a valid
// result rather than an error.
type Store interface {
	CreateDocument(ctx context.Context, collection string, data interface{}) (json.RawMessage, error)
	ReadDocument(ctx context.Context, collection string, query Query) ([]json.RawMessage, error)
	UpdateDocument(ctx context.Context, collection string, query Query, data interface{}) error
	DeleteDocument(ctx context.Context, collection string, query Query) error
}

// PersistenceError is a network or store failure on one of the four
// operations. The operation is treated as not having happened.
type PersistenceError struct {
	Op         string
	Collection string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that a query expected to identify a document
// matched nothing.
type NotFoundError struct {
	Collection string
	Key        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.Key)
}
