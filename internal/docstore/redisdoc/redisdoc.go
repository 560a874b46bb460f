// Package redisdoc implements the document-store contract on Redis: one hash
// per collection, one JSON-encoded document per hash field. Field-equality
// queries filter client-side, the same way the hosted document store falls
// back to in-memory filtering when it has no index.
package redisdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/sunnybiju2005/billing-application/internal/docstore"
)

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty redis address", docstore.ErrUnavailable)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", docstore.ErrUnavailable, err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func collectionKey(collection string) string {
	return "docs:" + collection
}

func (c *Client) Add(ctx context.Context, collection string, doc map[string]any) error {
	return c.SetDoc(ctx, collection, uuid.NewString(), doc)
}

func (c *Client) All(ctx context.Context, collection string) ([]map[string]any, error) {
	raw, err := c.rdb.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, payload := range raw {
		var doc map[string]any
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Client) FindEq(ctx context.Context, collection, field string, value any) ([]map[string]any, error) {
	docs, err := c.All(ctx, collection)
	if err != nil {
		return nil, err
	}
	matched := docs[:0]
	for _, doc := range docs {
		if fieldEquals(doc[field], value) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

func (c *Client) UpdateEq(ctx context.Context, collection, field string, value any, patch map[string]any) (int, error) {
	raw, err := c.rdb.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return 0, err
	}
	updated := 0
	for key, payload := range raw {
		var doc map[string]any
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return updated, err
		}
		if !fieldEquals(doc[field], value) {
			continue
		}
		for k, v := range patch {
			doc[k] = v
		}
		if err := c.SetDoc(ctx, collection, key, doc); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (c *Client) DeleteEq(ctx context.Context, collection, field string, value any) (int, error) {
	raw, err := c.rdb.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return 0, err
	}
	deleted := 0
	for key, payload := range raw {
		var doc map[string]any
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return deleted, err
		}
		if !fieldEquals(doc[field], value) {
			continue
		}
		if err := c.rdb.HDel(ctx, collectionKey(collection), key).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (c *Client) GetDoc(ctx context.Context, collection, key string) (map[string]any, bool, error) {
	payload, err := c.rdb.HGet(ctx, collectionKey(collection), key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (c *Client) SetDoc(ctx context.Context, collection, key string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.rdb.HSet(ctx, collectionKey(collection), key, payload).Err()
}

func (c *Client) DeleteDoc(ctx context.Context, collection, key string) error {
	return c.rdb.HDel(ctx, collectionKey(collection), key).Err()
}

func (c *Client) ListDocKeys(ctx context.Context, collection string) ([]string, error) {
	return c.rdb.HKeys(ctx, collectionKey(collection)).Result()
}

// fieldEquals compares a decoded JSON value against a query value. Decoded
// numbers are always float64, so numeric comparisons normalize through it.
func fieldEquals(stored, query any) bool {
	if storedNum, ok := asFloat(stored); ok {
		if queryNum, ok := asFloat(query); ok {
			return storedNum == queryNum
		}
		return false
	}
	return reflect.DeepEqual(stored, query)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
