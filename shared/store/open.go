package store

import "gorm.io/gorm"

// Open returns a Postgres table over db, or a MemoryTable when db is nil
func Open[T any](db *gorm.DB, opts ...Option) (Table[T], error) {
	if db == nil {
		return NewMemoryTable[T](), nil
	}
	return NewGormTable[T](db, opts...)
}

// MustOpen is Open for startup code
func MustOpen[T any](db *gorm.DB, opts ...Option) Table[T] {
	t, err := Open[T](db, opts...)
	if err != nil {
		panic(err)
	}
	return t
}
