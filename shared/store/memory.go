package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Operation names used by MemoryTable failure injection and call counting
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type idSetter interface {
	RecordID() int64
	SetRecordID(int64)
}

type toucher interface {
	Touch(time.Time)
}

// MemoryTable is an in-process Table for local development and tests
type MemoryTable[T any] struct {
	mu            sync.Mutex
	cols          *Columns[T]
	rows          []T
	nextID        int64
	emptyAsNoRows bool
	failures      map[string]error
	calls         map[string]int
	now           func() time.Time
}

// NewMemoryTable creates a table seeded with rows
func NewMemoryTable[T any](rows ...T) *MemoryTable[T] {
	t := &MemoryTable[T]{
		cols:     MustColumnsOf[T](),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		now:      time.Now,
	}
	t.Seed(rows...)
	return t
}

// Seed stores rows as-is, keeping their ids
func (t *MemoryTable[T]) Seed(rows ...T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, row := range rows {
		if ids, ok := any(&row).(idSetter); ok {
			if ids.RecordID() == 0 {
				t.nextID++
				ids.SetRecordID(t.nextID)
			} else if ids.RecordID() > t.nextID {
				t.nextID = ids.RecordID()
			}
		}
		t.rows = append(t.rows, row)
	}
}

// ReportEmptyAsNoRows makes Select return ErrNoRows instead of an empty slice
func (t *MemoryTable[T]) ReportEmptyAsNoRows(v bool) {
	t.mu.Lock()
	t.emptyAsNoRows = v
	t.mu.Unlock()
}

// FailNext makes the next call of op return err
func (t *MemoryTable[T]) FailNext(op string, err error) {
	t.mu.Lock()
	t.failures[op] = err
	t.mu.Unlock()
}

// Calls returns how many times op was invoked
func (t *MemoryTable[T]) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// Rows returns a copy of every stored row
func (t *MemoryTable[T]) Rows() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, len(t.rows))
	for i, row := range t.rows {
		out[i] = Clone(row)
	}
	return out
}

func (t *MemoryTable[T]) enter(op string) error {
	t.calls[op]++
	if err, ok := t.failures[op]; ok {
		delete(t.failures, op)
		return err
	}
	return nil
}

func (t *MemoryTable[T]) Select(ctx context.Context, filter Filter) ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter(OpSelect); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []T
	for i := range t.rows {
		ok, err := t.matches(&t.rows[i], filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Clone(t.rows[i]))
		}
	}
	if len(out) == 0 && t.emptyAsNoRows {
		return nil, ErrNoRows
	}
	return out, nil
}

func (t *MemoryTable[T]) Insert(ctx context.Context, row T) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter(OpInsert); err != nil {
		return row, err
	}
	if err := ctx.Err(); err != nil {
		return row, err
	}

	row = Clone(row)
	if ids, ok := any(&row).(idSetter); ok {
		t.nextID++
		ids.SetRecordID(t.nextID)
	}
	if tc, ok := any(&row).(toucher); ok {
		tc.Touch(t.now())
	}
	t.rows = append(t.rows, row)
	return Clone(row), nil
}

func (t *MemoryTable[T]) Update(ctx context.Context, patch map[string]interface{}, filter Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter(OpUpdate); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(filter) == 0 {
		return ErrMissingFilter
	}

	// Rows are only replaced once every match has been patched
	next := make([]T, len(t.rows))
	copy(next, t.rows)
	updated := 0
	for i := range next {
		ok, err := t.matches(&next[i], filter)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		row, err := ApplyPatch(next[i], patch)
		if err != nil {
			return err
		}
		if tc, ok := any(&row).(toucher); ok {
			tc.Touch(t.now())
		}
		next[i] = row
		updated++
	}
	if updated == 0 {
		return ErrNoRows
	}
	t.rows = next
	return nil
}

func (t *MemoryTable[T]) Delete(ctx context.Context, filter Filter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter(OpDelete); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(filter) == 0 {
		return ErrMissingFilter
	}

	kept := make([]T, 0, len(t.rows))
	removed := 0
	for i := range t.rows {
		ok, err := t.matches(&t.rows[i], filter)
		if err != nil {
			return err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, t.rows[i])
	}
	t.rows = kept
	if removed == 0 {
		return ErrNoRows
	}
	return nil
}

func (t *MemoryTable[T]) matches(row *T, filter Filter) (bool, error) {
	for column, want := range filter {
		got, ok := t.cols.Value(row, column)
		if !ok {
			return false, fmt.Errorf("unknown column %q on %s", column, t.cols.Table())
		}
		if !sameValue(got, want) {
			return false, nil
		}
	}
	return true, nil
}

// sameValue compares a stored value with a filter value, tolerating numeric
// type differences (int vs int64) the way SQL equality does
func sameValue(got, want interface{}) bool {
	if reflect.DeepEqual(got, want) {
		return true
	}
	if got == nil || want == nil {
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}
