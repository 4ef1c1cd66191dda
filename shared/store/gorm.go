package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Option configures a GormTable
type Option func(*tableOptions)

type tableOptions struct {
	order string
}

// OrderBy sets the ORDER BY expression used by Select
func OrderBy(expr string) Option {
	return func(o *tableOptions) {
		o.order = expr
	}
}

// GormTable is the Postgres-backed Table
type GormTable[T any] struct {
	db    *gorm.DB
	cols  *Columns[T]
	order string
}

// NewGormTable creates a table bound to T's gorm model
func NewGormTable[T any](db *gorm.DB, opts ...Option) (*GormTable[T], error) {
	cols, err := ColumnsOf[T]()
	if err != nil {
		return nil, err
	}

	var o tableOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &GormTable[T]{db: db, cols: cols, order: o.order}, nil
}

// Select returns every row matching filter; an empty result is not an error
func (t *GormTable[T]) Select(ctx context.Context, filter Filter) ([]T, error) {
	var rows []T
	q := t.db.WithContext(ctx).Where(map[string]interface{}(filter))
	if t.order != "" {
		q = q.Order(t.order)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", t.cols.Table(), err)
	}
	return rows, nil
}

// Insert creates row and returns it with the store-assigned columns filled in
func (t *GormTable[T]) Insert(ctx context.Context, row T) (T, error) {
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return row, fmt.Errorf("failed to insert into %s: %w", t.cols.Table(), err)
	}
	return row, nil
}

// Update overwrites the patch columns of every row matching filter. The patch
// is decoded into a typed row first so jsonb columns go through their Valuer.
func (t *GormTable[T]) Update(ctx context.Context, patch map[string]interface{}, filter Filter) error {
	if len(filter) == 0 {
		return ErrMissingFilter
	}
	if len(patch) == 0 {
		return nil
	}

	typed, err := DecodeFields[T](patch)
	if err != nil {
		return err
	}

	values := make(map[string]interface{}, len(patch))
	for column := range patch {
		v, ok := t.cols.Value(&typed, column)
		if !ok {
			return &FieldError{Column: column, Err: errUnknownColumn}
		}
		values[column] = v
	}

	res := t.db.WithContext(ctx).Model(new(T)).Where(map[string]interface{}(filter)).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", t.cols.Table(), res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

// Delete removes every row matching filter
func (t *GormTable[T]) Delete(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return ErrMissingFilter
	}

	res := t.db.WithContext(ctx).Where(map[string]interface{}(filter)).Delete(new(T))
	if res.Error != nil {
		return fmt.Errorf("failed to delete from %s: %w", t.cols.Table(), res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}
