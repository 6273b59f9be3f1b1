package kvstore

import (
	"context"
	"fmt"
)

type quotaStore struct {
	Store
	max int
}

// WithQuota rejects values longer than maxBytes with ErrQuotaExceeded. A
// non-positive maxBytes disables the check.
func WithQuota(s Store, maxBytes int) Store {
	if maxBytes <= 0 {
		return s
	}
	return &quotaStore{Store: s, max: maxBytes}
}

func (q *quotaStore) Set(ctx context.Context, key, value string) error {
	if len(value) > q.max {
		return fmt.Errorf("%w: value for %q is %d bytes, limit %d", ErrQuotaExceeded, key, len(value), q.max)
	}
	return q.Store.Set(ctx, key, value)
}
