package maintenance

import (
	"context"
	"time"
)

// Filter selects rows whose timestamp column precedes a cutoff. Every
// maintenance task here is an age-based sweep, so a single comparison
// covers the whole surface; rows with a NULL column never match.
type Filter struct {
	Column string
	Before time.Time
}

// Store is the slice of the database maintenance tasks operate through.
// Table names are code constants, never user input.
type Store interface {
	// CountWhere reports how many rows the filter matches.
	CountWhere(ctx context.Context, table string, f Filter) (int64, error)

	// DeleteWhere removes the matching rows and reports how many went.
	DeleteWhere(ctx context.Context, table string, f Filter) (int64, error)

	// CopyWhere inserts the matching rows of from into to, which must
	// share the source's column layout. Rows are not removed.
	CopyWhere(ctx context.Context, from, to string, f Filter) (int64, error)
}
