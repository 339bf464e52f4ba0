package resource

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/harrylevesque/hivebff/internal/backend"
	"github.com/harrylevesque/hivebff/internal/cache"
)

// Collections lists the account collections that can be read through the BFF.
var Collections = []string{"events", "tasks", "notes", "tiles", "documents", "members", cache.ActivitiesCollection}

// IsCollection reports whether name is a readable collection.
func IsCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// ListQuery selects one account collection as seen by one caller.
type ListQuery struct {
	Collection string
	AccountID  string
	Bearer     string
	// Scope separates cached copies per caller; see auth.Principal.CacheKey.
	Scope string
	// Force skips the cached copy.
	Force bool
}

// Lists reads account collections through the cache.
type Lists struct {
	backend Doer
	loader  *cache.Loader
	ttl     time.Duration
}

// NewLists returns a list reader caching bodies for ttl.
func NewLists(b Doer, loader *cache.Loader, ttl time.Duration) *Lists {
	return &Lists{backend: b, loader: loader, ttl: ttl}
}

// Read returns the raw list body for q.
func (l *Lists) Read(ctx context.Context, q ListQuery) (cache.Result, error) {
	key := cache.ListKey(q.Collection, q.AccountID, q.Scope)
	res, err := l.loader.Load(ctx, key, l.ttl, q.Force, func(ctx context.Context) ([]byte, error) {
		resp, err := l.backend.Do(ctx, backend.Request{
			Method: http.MethodGet,
			Path:   q.Collection,
			Query:  url.Values{"accountId": {q.AccountID}},
			Bearer: q.Bearer,
		})
		if err != nil {
			return nil, err
		}
		return resp.JSONBody(), nil
	})
	if err != nil {
		return cache.Result{}, upstreamError("Failed to load "+q.Collection, err)
	}
	return res, nil
}
