// Package memdoc is an in-memory document-store client used by tests and
// local experiments. It supports scripted failure injection so callers can
// exercise the degraded-remote paths without a real backend.
package memdoc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sunnybiju2005/billing-application/internal/docstore"
)

type Client struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	nextKey     int

	// FailWith, when non-nil, is returned by every operation until cleared.
	failWith error
}

func New() *Client {
	return &Client{collections: map[string]map[string]map[string]any{}}
}

// FailWith makes every subsequent operation return err; FailWith(nil)
// restores normal behavior.
func (c *Client) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

func (c *Client) check() error {
	return c.failWith
}

func (c *Client) collection(name string) map[string]map[string]any {
	coll, ok := c.collections[name]
	if !ok {
		coll = map[string]map[string]any{}
		c.collections[name] = coll
	}
	return coll
}

func (c *Client) Add(ctx context.Context, collection string, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	c.nextKey++
	c.collection(collection)[fmt.Sprintf("k%06d", c.nextKey)] = cloneDoc(doc)
	return nil
}

func (c *Client) All(ctx context.Context, collection string) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	coll := c.collection(collection)
	keys := sortedKeys(coll)
	docs := make([]map[string]any, 0, len(coll))
	for _, key := range keys {
		docs = append(docs, cloneDoc(coll[key]))
	}
	return docs, nil
}

func (c *Client) FindEq(ctx context.Context, collection, field string, value any) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	coll := c.collection(collection)
	docs := make([]map[string]any, 0, 8)
	for _, key := range sortedKeys(coll) {
		if equalValue(coll[key][field], value) {
			docs = append(docs, cloneDoc(coll[key]))
		}
	}
	return docs, nil
}

func (c *Client) UpdateEq(ctx context.Context, collection, field string, value any, patch map[string]any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return 0, err
	}
	updated := 0
	for _, doc := range c.collection(collection) {
		if !equalValue(doc[field], value) {
			continue
		}
		for k, v := range patch {
			doc[k] = v
		}
		updated++
	}
	return updated, nil
}

func (c *Client) DeleteEq(ctx context.Context, collection, field string, value any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return 0, err
	}
	coll := c.collection(collection)
	deleted := 0
	for key, doc := range coll {
		if equalValue(doc[field], value) {
			delete(coll, key)
			deleted++
		}
	}
	return deleted, nil
}

func (c *Client) GetDoc(ctx context.Context, collection, key string) (map[string]any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, false, err
	}
	doc, ok := c.collection(collection)[key]
	if !ok {
		return nil, false, nil
	}
	return cloneDoc(doc), true, nil
}

func (c *Client) SetDoc(ctx context.Context, collection, key string, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	c.collection(collection)[key] = cloneDoc(doc)
	return nil
}

func (c *Client) DeleteDoc(ctx context.Context, collection, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	delete(c.collection(collection), key)
	return nil
}

func (c *Client) ListDocKeys(ctx context.Context, collection string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	return sortedKeys(c.collection(collection)), nil
}

func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.check()
}

func (c *Client) Close() error {
	return nil
}

var _ docstore.Client = (*Client)(nil)

func sortedKeys(coll map[string]map[string]any) []string {
	keys := make([]string, 0, len(coll))
	for key := range coll {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cloneDoc(doc map[string]any) map[string]any {
	dup := make(map[string]any, len(doc))
	for k, v := range doc {
		dup[k] = v
	}
	return dup
}

// equalValue mirrors the numeric normalization of the real backends, where
// JSON round-trips turn every number into float64.
func equalValue(stored, query any) bool {
	if sn, ok := toFloat(stored); ok {
		qn, ok := toFloat(query)
		return ok && sn == qn
	}
	return stored == query
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
