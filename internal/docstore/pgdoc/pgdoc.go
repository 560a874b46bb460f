// Package pgdoc implements the document-store contract on Postgres: one
// JSONB row per document, field-equality via containment.
package pgdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sunnybiju2005/billing-application/internal/docstore"
)

type Client struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: empty database url", docstore.ErrUnavailable)
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}

	client := &Client{db: db}
	if err := client.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return client, nil
}

func (c *Client) ensureSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection text NOT NULL,
			key        text NOT NULL,
			doc        jsonb NOT NULL,
			PRIMARY KEY (collection, key)
		)
	`)
	return err
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.db.PingContext(pingCtx)
}

func (c *Client) Add(ctx context.Context, collection string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc)
		VALUES ($1, $2, $3)
	`, collection, uuid.NewString(), payload)
	return err
}

func (c *Client) All(ctx context.Context, collection string) ([]map[string]any, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 ORDER BY key
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (c *Client) FindEq(ctx context.Context, collection, field string, value any) ([]map[string]any, error) {
	match, err := containmentFilter(field, value)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND doc @> $2 ORDER BY key
	`, collection, match)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocs(rows)
}

func (c *Client) UpdateEq(ctx context.Context, collection, field string, value any, patch map[string]any) (int, error) {
	match, err := containmentFilter(field, value)
	if err != nil {
		return 0, err
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET doc = doc || $3 WHERE collection = $1 AND doc @> $2
	`, collection, match, patchJSON)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (c *Client) DeleteEq(ctx context.Context, collection, field string, value any) (int, error) {
	match, err := containmentFilter(field, value)
	if err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND doc @> $2
	`, collection, match)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

func (c *Client) GetDoc(ctx context.Context, collection, key string) (map[string]any, bool, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT doc FROM documents WHERE collection = $1 AND key = $2
	`, collection, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (c *Client) SetDoc(ctx context.Context, collection, key string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET doc = EXCLUDED.doc
	`, collection, key, payload)
	return err
}

func (c *Client) DeleteDoc(ctx context.Context, collection, key string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = $1 AND key = $2
	`, collection, key)
	return err
}

func (c *Client) ListDocKeys(ctx context.Context, collection string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT key FROM documents WHERE collection = $1 ORDER BY key
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0, 16)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// containmentFilter builds the JSONB containment object {field: value} used
// for field-equality matching.
func containmentFilter(field string, value any) ([]byte, error) {
	return json.Marshal(map[string]any{field: value})
}

func scanDocs(rows *sql.Rows) ([]map[string]any, error) {
	docs := make([]map[string]any, 0, 32)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
