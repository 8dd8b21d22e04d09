package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/jukubill/pkg/db/option"
	"gorm.io/gorm"
)

// BatchSize bounds a single INSERT; bank files and debit batches can run
// to several thousand rows.
const BatchSize = 500

type store[T any] struct {
	db *gorm.DB
}

// ProvideStore binds a store to db, which is usually the open transaction.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return store[T]{db: db}
}

func (s store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	if err := s.query(ctx, query, opts).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	out := new(T)
	err := s.query(ctx, query, opts).Take(out).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return out, nil
}

func (s store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(resources, BatchSize).Error
}

func (s store[T]) query(ctx context.Context, filter *T, opts []option.QueryOption) *gorm.DB {
	tx := s.db.WithContext(ctx).Where(filter)
	for _, opt := range opts {
		tx = opt.Apply(tx)
	}
	return tx
}
