// Package export renders cached records for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pavitra93/go-planning-dashboard/shared/store"
)

// CSV writes a header of column names followed by one line per row. Columns
// listed in skip are left out.
func CSV[T any](w io.Writer, cols *store.Columns[T], rows []T, skip ...string) error {
	omit := make(map[string]bool, len(skip))
	for _, s := range skip {
		omit[s] = true
	}

	header := make([]string, 0, len(cols.Names()))
	for _, name := range cols.Names() {
		if !omit[name] {
			header = append(header, name)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	line := make([]string, len(header))
	for i := range rows {
		for j, col := range header {
			v, _ := cols.Value(&rows[i], col)
			line[j] = cell(v)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func cell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
