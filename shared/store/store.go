// Package store is the boundary to the relational backend. Every table is
// reached through Table, which only knows equality filters.
package store

import (
	"context"
	"errors"
)

// ErrNoRows is the store's "no rows" condition. It is not a failure: Select
// may return it for an empty result and Update/Delete return it when the
// filter matched nothing.
var ErrNoRows = errors.New("no rows")

// ErrMissingFilter guards against unfiltered updates and deletes
var ErrMissingFilter = errors.New("refusing to write without a filter")

// Filter is a set of column = value predicates joined with AND
type Filter map[string]interface{}

// Table is the per-table contract of the backend
type Table[T any] interface {
	Select(ctx context.Context, filter Filter) ([]T, error)
	Insert(ctx context.Context, row T) (T, error)
	Update(ctx context.Context, patch map[string]interface{}, filter Filter) error
	Delete(ctx context.Context, filter Filter) error
}

// IsNoRows reports whether err is the "no rows" condition
func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}
