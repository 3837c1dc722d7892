package docserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data);
`

// PostgresStorage stores each document as one JSONB row. Field-equality
// queries map onto the @> containment operator, so the GIN index serves
// them.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to databaseURL and ensures the schema.
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) Create(ctx context.Context, collection string, doc map[string]interface{}) (map[string]interface{}, error) {
	stored := cloneDoc(doc)
	id, ok := stored["_id"].(string)
	if !ok || id == "" {
		id = uuid.New().String()
		stored["_id"] = id
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)`,
		collection, id, data)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return stored, nil
}

func (s *PostgresStorage) Read(ctx context.Context, collection string, query map[string]interface{}) ([]map[string]interface{}, error) {
	filter, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND data @> $2::jsonb`,
		collection, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) Update(ctx context.Context, collection string, query, data map[string]interface{}) (int64, error) {
	patch := cloneDoc(data)
	delete(patch, "_id")

	filter, err := json.Marshal(query)
	if err != nil {
		return 0, err
	}
	merge, err := json.Marshal(patch)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND data @> $2::jsonb`,
		collection, filter, merge)
	if err != nil {
		return 0, fmt.Errorf("failed to update documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStorage) Delete(ctx context.Context, collection string, query map[string]interface{}) (int64, error) {
	filter, err := json.Marshal(query)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND data @> $2::jsonb`,
		collection, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStorage) Close() {
	s.pool.Close()
}

var _ Storage = (*PostgresStorage)(nil)
