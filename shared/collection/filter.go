package collection

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

// Query parameter prefixes understood by ParsePredicates
const (
	prefixContains = "contains."
	prefixEquals   = "eq."
	prefixFrom     = "from."
	prefixTo       = "to."
)

// Predicate tests one column of a row
type Predicate interface {
	Column() string
	Match(value interface{}) bool
}

// Contains is a case-insensitive substring match on a text column
type Contains struct {
	Col    string
	Substr string
}

func (p Contains) Column() string { return p.Col }

func (p Contains) Match(value interface{}) bool {
	if value == nil {
		return p.Substr == ""
	}
	return strings.Contains(strings.ToLower(textOf(value)), strings.ToLower(p.Substr))
}

// Equals is a case-insensitive equality match on an enum, boolean or number
// column rendered as text
type Equals struct {
	Col   string
	Value string
}

func (p Equals) Column() string { return p.Col }

func (p Equals) Match(value interface{}) bool {
	if value == nil {
		return p.Value == ""
	}
	return strings.EqualFold(textOf(value), p.Value)
}

// Between matches date columns within [From, To]; a nil bound is open
type Between struct {
	Col  string
	From *time.Time
	To   *time.Time
}

func (p Between) Column() string { return p.Col }

func (p Between) Match(value interface{}) bool {
	t, ok := value.(time.Time)
	if !ok {
		return false
	}
	if p.From != nil && t.Before(*p.From) {
		return false
	}
	if p.To != nil && t.After(*p.To) {
		return false
	}
	return true
}

func textOf(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// UnknownColumnError is returned for a predicate on a column T does not have
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown filter column %q", e.Column)
}

// Apply keeps the rows matching every predicate. It never mutates rows and
// always returns a non-nil slice.
func Apply[T any](rows []T, cols *store.Columns[T], preds []Predicate) ([]T, error) {
	for _, p := range preds {
		if !cols.Has(p.Column()) {
			return nil, &UnknownColumnError{Column: p.Column()}
		}
	}

	out := make([]T, 0, len(rows))
	for i := range rows {
		if matchesAll(&rows[i], cols, preds) {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

func matchesAll[T any](row *T, cols *store.Columns[T], preds []Predicate) bool {
	for _, p := range preds {
		v, _ := cols.Value(row, p.Column())
		if !p.Match(v) {
			return false
		}
	}
	return true
}

// ParsePredicates reads contains.<col>, eq.<col>, from.<col> and to.<col>
// query parameters. from/to on the same column form one Between; a date-only
// upper bound covers the whole day. Other parameters are ignored.
func ParsePredicates(query url.Values) ([]Predicate, error) {
	var preds []Predicate
	ranges := make(map[string]*Between)

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := query.Get(key)
		switch {
		case strings.HasPrefix(key, prefixContains):
			preds = append(preds, Contains{Col: strings.TrimPrefix(key, prefixContains), Substr: value})
		case strings.HasPrefix(key, prefixEquals):
			preds = append(preds, Equals{Col: strings.TrimPrefix(key, prefixEquals), Value: value})
		case strings.HasPrefix(key, prefixFrom):
			col := strings.TrimPrefix(key, prefixFrom)
			t, _, err := parseDate(value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			rangeFor(ranges, col).From = &t
		case strings.HasPrefix(key, prefixTo):
			col := strings.TrimPrefix(key, prefixTo)
			t, dateOnly, err := parseDate(value)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			if dateOnly {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			rangeFor(ranges, col).To = &t
		}
	}

	cols := make([]string, 0, len(ranges))
	for col := range ranges {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		preds = append(preds, *ranges[col])
	}
	return preds, nil
}

func rangeFor(ranges map[string]*Between, col string) *Between {
	b, ok := ranges[col]
	if !ok {
		b = &Between{Col: col}
		ranges[col] = b
	}
	return b
}

// parseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates (UTC)
func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
