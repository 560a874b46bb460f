// Package docstore defines the remote document-database contract: collection
// scoped add/query/update/delete by field equality, plus keyed documents for
// the month buckets. Backends implement it over Postgres JSONB or Redis.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// Collection names, shared by every backend and mirrored in the local schema.
const (
	CollectionUsers        = "users"
	CollectionInventory    = "inventory"
	CollectionBills        = "bills"
	CollectionMonthlySales = "monthly_sales"
)

var (
	// ErrUnavailable marks connectivity, credential or driver failures.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrQuota marks storage-exhaustion failures: the backend is reachable
	// but refuses further writes.
	ErrQuota = errors.New("document store quota exceeded")
)

// Client is a collection-scoped document API. Documents are plain JSON
// objects; field-equality is the only query primitive, matching what the
// remote backend actually offers.
type Client interface {
	Add(ctx context.Context, collection string, doc map[string]any) error
	All(ctx context.Context, collection string) ([]map[string]any, error)
	FindEq(ctx context.Context, collection, field string, value any) ([]map[string]any, error)
	UpdateEq(ctx context.Context, collection, field string, value any, patch map[string]any) (int, error)
	DeleteEq(ctx context.Context, collection, field string, value any) (int, error)

	// Keyed documents back the monthly_sales collection, where the document
	// key is the "YYYY-MM" month.
	GetDoc(ctx context.Context, collection, key string) (map[string]any, bool, error)
	SetDoc(ctx context.Context, collection, key string, doc map[string]any) error
	DeleteDoc(ctx context.Context, collection, key string) error
	ListDocKeys(ctx context.Context, collection string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// quotaSignatures are lowercase substrings that identify storage-exhaustion
// errors across backends: Postgres disk/limit SQLSTATEs surface as text via
// the driver, Redis reports OOM / maxmemory, and hosted document stores use
// quota / resource-exhausted wording.
var quotaSignatures = []string{
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"disk full",
	"no space left",
	"maxmemory",
	"oom command not allowed",
	"sqlstate 53100",
	"sqlstate 53200",
	"sqlstate 53300",
	"sqlstate 53400",
}

// IsQuotaExceeded reports whether err carries a known storage-exhaustion
// signature. Anything else is treated as a transient/connectivity failure.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuota) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, signature := range quotaSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}
