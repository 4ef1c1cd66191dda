package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FieldError reports a column that could not be applied to a row
type FieldError struct {
	Column string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

var errUnknownColumn = errors.New("unknown column")

// DecodeFields builds a row of T from a column-keyed field map
func DecodeFields[T any](fields map[string]interface{}) (T, error) {
	var zero T
	return ApplyPatch(zero, fields)
}

// ApplyPatch returns a copy of row with the patch columns overwritten. Keys are
// column names as they appear in the row's JSON form; unknown keys and values
// of the wrong type are rejected with a *FieldError. The result never shares
// slices or maps with row.
func ApplyPatch[T any](row T, patch map[string]interface{}) (T, error) {
	base, err := json.Marshal(row)
	if err != nil {
		return row, fmt.Errorf("failed to encode row: %w", err)
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return row, fmt.Errorf("failed to decode row: %w", err)
	}

	for column, value := range patch {
		if _, ok := merged[column]; !ok {
			return row, &FieldError{Column: column, Err: errUnknownColumn}
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return row, &FieldError{Column: column, Err: err}
		}
		merged[column] = encoded
	}

	body, err := json.Marshal(merged)
	if err != nil {
		return row, fmt.Errorf("failed to encode patched row: %w", err)
	}

	var out T
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return row, &FieldError{Column: typeErr.Field, Err: err}
		}
		return row, &FieldError{Err: err}
	}
	return out, nil
}

// Clone deep-copies row through its JSON form
func Clone[T any](row T) T {
	out, err := ApplyPatch(row, nil)
	if err != nil {
		return row
	}
	return out
}
