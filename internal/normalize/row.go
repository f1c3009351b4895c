package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingField means a required column is absent or empty.
	ErrMissingField = errors.New("missing required field")
	// ErrBadValue means a column holds a value that cannot be decoded.
	ErrBadValue = errors.New("invalid field value")
)

// Row is one CSV record keyed by upper-cased header name.
type Row map[string]string

// RowContext locates a row for logging.
type RowContext struct {
	File string
	Line int
}

func (c RowContext) String() string {
	return fmt.Sprintf("%s:%d", c.File, c.Line)
}

func (r Row) get(name string) string {
	return strings.TrimSpace(r[name])
}

func (r Row) require(name string) (string, error) {
	v := r.get(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return v, nil
}

// optionalFloat parses a numeric column. Empty values and any of the given
// sentinels yield nil.
func (r Row) optionalFloat(name string, sentinels ...float64) (*float64, error) {
	return optionalFloat(name, r.get(name), sentinels...)
}

func optionalFloat(name, v string, sentinels ...float64) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrBadValue, name, v)
	}
	for _, s := range sentinels {
		if f == s {
			return nil, nil
		}
	}
	return &f, nil
}

// count parses a non-negative integer column; empty means 0.
func (r Row) count(name string) (int, error) {
	v := r.get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadValue, name, v)
	}
	return n, nil
}

// parseTime tries each layout in turn and returns the first match in UTC.
func parseTime(name, value string, layouts ...string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s=%q", ErrBadValue, name, value)
}
