// Package cache implements the read-through loader used for list reads. An
// entry is served while it is younger than its TTL; older entries trigger a
// refetch and are only served again when that refetch fails.
package cache

import (
	"context"
	"time"
)

// Entry is one cached upstream body.
type Entry struct {
	Key      string
	Body     []byte
	StoredAt time.Time
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Store persists entries.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}
