package repository

import (
	"context"

	"github.com/smallbiznis/jukubill/pkg/db/option"
)

// Repository is a generic store for rows that need no bespoke SQL. Zero
// fields of the query struct are ignored, so callers always set OrgID.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when nothing matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	// BatchCreate inserts in chunks of BatchSize rows.
	BatchCreate(ctx context.Context, resources []*T) error
}
