package archive

import (
	"context"
	"time"
)

// Repository stores finished matches durably.
type Repository interface {
	Upsert(ctx context.Context, record Record) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]Record, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
