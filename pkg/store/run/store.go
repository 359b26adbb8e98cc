package run

import (
	"context"
	"time"

	"github.com/seclens/auditgate/pkg/models/store"
)

// ListFilter narrows and pages a run listing. A zero Limit falls back to
// the store default.
type ListFilter struct {
	RepoFingerprint string
	Limit           int
	Offset          int
}

// Store is the durable record of audit runs. The idempotency ledger and
// the run table are the same physical store: Create is an atomic
// insert-if-absent keyed by idempotency key, which is the only write the
// ledger needs.
type Store interface {
	// Create inserts the row unless its idempotency key already exists.
	// It reports whether the insert won and always returns the durable
	// row: the caller's on a win, the earlier winner's on a conflict.
	Create(ctx context.Context, row store.RunRow) (bool, store.RunRow, error)

	// GetByIdempotencyKey returns the committed outcome for a key, or
	// domain.ErrRunNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (store.RunRow, error)

	// GetByID returns one run by its run id, or domain.ErrRunNotFound.
	GetByID(ctx context.Context, id string) (store.RunRow, error)

	// List returns runs newest-first, optionally filtered by repo.
	List(ctx context.Context, filter ListFilter) ([]store.RunRow, error)

	// ListSince returns every run created at or after the cutoff,
	// oldest-first. Used to rebuild trend aggregates.
	ListSince(ctx context.Context, since time.Time) ([]store.RunRow, error)

	// CountByStatusSince aggregates run verdicts from the cutoff onward.
	CountByStatusSince(ctx context.Context, since time.Time) (store.StatusCounts, error)
}
