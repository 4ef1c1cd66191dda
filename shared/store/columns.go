package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm/schema"
)

var schemaCache sync.Map

// Columns exposes the column layout of T as parsed by gorm
type Columns[T any] struct {
	schema *schema.Schema
}

// ColumnsOf parses the gorm schema of T
func ColumnsOf[T any]() (*Columns[T], error) {
	s, err := schema.Parse(new(T), &schemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema of %T: %w", *new(T), err)
	}
	return &Columns[T]{schema: s}, nil
}

// MustColumnsOf is ColumnsOf for model types known at compile time
func MustColumnsOf[T any]() *Columns[T] {
	c, err := ColumnsOf[T]()
	if err != nil {
		panic(err)
	}
	return c
}

// Table returns the table name
func (c *Columns[T]) Table() string {
	return c.schema.Table
}

// Names returns the column names in declaration order
func (c *Columns[T]) Names() []string {
	return c.schema.DBNames
}

// Has reports whether column exists on T
func (c *Columns[T]) Has(column string) bool {
	_, ok := c.schema.FieldsByDBName[column]
	return ok
}

// Value reads column from row. Pointer fields are dereferenced; a nil pointer
// yields nil.
func (c *Columns[T]) Value(row *T, column string) (interface{}, bool) {
	field, ok := c.schema.FieldsByDBName[column]
	if !ok {
		return nil, false
	}
	v, _ := field.ValueOf(context.Background(), reflect.ValueOf(row).Elem())

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, true
		}
		return rv.Elem().Interface(), true
	}
	return v, true
}
