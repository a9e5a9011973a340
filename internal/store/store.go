// Package store persists payload and report records.
//
// Structured fields (oasInfo, validation log, rule results, tags, the
// consolidated list) are stored as JSON text so one schema serves SQLite and
// PostgreSQL. Tags are also written to payload_tags for filtering.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/solatis/oasconform/internal/types"
)

const (
	defaultPageSize = 50
	maxPageSize     = 10000
)

type options struct {
	clock types.Clock
}

// Option configures a store.
type Option func(*options)

// WithClock overrides the clock used for created and test timestamps.
func WithClock(clock types.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: types.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// page converts a 1-based page number and size into LIMIT and OFFSET.
func page(number, size int) (int, int) {
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if number < 1 {
		number = 1
	}
	return size, (number - 1) * size
}

// encodeJSON returns NULL for nil values and empty slices, which the
// update queries treat as "leave unchanged".
func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		if rv.IsNil() {
			return sql.NullString{}, nil
		}
	case reflect.Slice:
		if rv.Len() == 0 {
			return sql.NullString{}, nil
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dest); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
