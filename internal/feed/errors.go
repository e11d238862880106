package feed

import (
	"fmt"
	"strings"
)

// MissingColumnsError is returned when a table header lacks required columns.
type MissingColumnsError struct {
	File    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.File, strings.Join(e.Columns, ", "))
}

// InvalidValueError reports a value that could not be parsed. Row is 1-based and
// does not count the header.
type InvalidValueError struct {
	File   string
	Column string
	Row    int
	Value  string
	Reason error
}

func (e *InvalidValueError) Error() string {
	if e.Reason == nil {
		return fmt.Sprintf("%s:%d: invalid %s %q", e.File, e.Row, e.Column, e.Value)
	}
	return fmt.Sprintf("%s:%d: invalid %s %q: %s", e.File, e.Row, e.Column, e.Value, e.Reason)
}

func (e *InvalidValueError) Unwrap() error { return e.Reason }
