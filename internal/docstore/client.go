package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client speaks the document proxy's HTTP protocol: every operation is a
// POST to /api/preferences/<operation> carrying {collection, query, data}.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a client for the proxy at baseURL. token is sent on
// every request in the authorization header.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		httpClient.SetHeader("authorization", token)
	}

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

type operationRequest struct {
	Collection string      `json:"collection"`
	Query      Query       `json:"query"`
	Data       interface{} `json:"data,omitempty"`
}

type operationError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, op string, req operationRequest, out interface{}) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		SetError(&operationError{}).
		Post("/api/preferences/" + op)
	if err != nil {
		return &PersistenceError{Op: op, Collection: req.Collection, Err: err}
	}
	if resp.IsError() {
		opErr, _ := resp.Error().(*operationError)
		msg := resp.Status()
		if opErr != nil && opErr.Message != "" {
			msg = opErr.Message
		}
		return &PersistenceError{Op: op, Collection: req.Collection, Err: fmt.Errorf("%s", msg)}
	}
	return nil
}

// CreateDocument submits a new document and returns the persisted record as
// confirmed by the server.
func (c *Client) CreateDocument(ctx context.Context, collection string, data interface{}) (json.RawMessage, error) {
	var created json.RawMessage
	err := c.post(ctx, "createDocument", operationRequest{Collection: collection, Data: data}, &created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReadDocument queries a collection. The result is always a list; an empty
// list is a valid empty result.
func (c *Client) ReadDocument(ctx context.Context, collection string, query Query) ([]json.RawMessage, error) {
	if query == nil {
		query = Query{}
	}
	var docs []json.RawMessage
	err := c.post(ctx, "readDocument", operationRequest{Collection: collection, Query: query}, &docs)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocument merges data into every document matching query.
func (c *Client) UpdateDocument(ctx context.Context, collection string, query Query, data interface{}) error {
	var ack json.RawMessage
	return c.post(ctx, "updateDocument", operationRequest{Collection: collection, Query: query, Data: data}, &ack)
}

// DeleteDocument removes every document matching query.
func (c *Client) DeleteDocument(ctx context.Context, collection string, query Query) error {
	var ack json.RawMessage
	return c.post(ctx, "deleteDocument", operationRequest{Collection: collection, Query: query}, &ack)
}

var _ Store = (*Client)(nil)
