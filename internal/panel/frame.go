// Package panel holds the in-memory column table the event study works on and
// the loader that fills it from a Stata dataset.
//
// Every column is stored as []float64. Missing values are NaN, whatever the
// source encoding was.
package panel

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrColumnNotFound is returned when a named column is absent from a Frame.
var ErrColumnNotFound = errors.New("column not found")

// ErrLengthMismatch is returned when a column does not match the frame's row count.
var ErrLengthMismatch = errors.New("column length mismatch")

// Frame is an ordered set of equally long float64 columns.
type Frame struct {
	names   []string
	columns map[string][]float64
	rows    int
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{columns: make(map[string][]float64)}
}

// Rows returns the number of rows. An empty frame has zero rows.
func (f *Frame) Rows() int {
	return f.rows
}

// Names returns the column names in insertion order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Column returns the values of the named column. The slice is shared with the frame.
func (f *Frame) Column(name string) ([]float64, error) {
	col, ok := f.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return col, nil
}

// AddColumn inserts or replaces a column. The first column fixes the row count.
func (f *Frame) AddColumn(name string, values []float64) error {
	if name == "" {
		return errors.New("column name must not be empty")
	}
	if len(f.names) > 0 && len(values) != f.rows {
		return fmt.Errorf("%w: %s has %d rows, frame has %d", ErrLengthMismatch, name, len(values), f.rows)
	}
	if _, exists := f.columns[name]; !exists {
		f.names = append(f.names, name)
	}
	f.columns[name] = values
	f.rows = len(values)
	return nil
}

// ColumnsWithPrefix returns the names starting with prefix, in frame order.
func (f *Frame) ColumnsWithPrefix(prefix string) []string {
	var out []string
	for _, name := range f.names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// CompleteRows returns the indices of rows with no NaN in any of the named columns.
func (f *Frame) CompleteRows(names []string) ([]int, error) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		col, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	keep := make([]int, 0, f.rows)
	for r := 0; r < f.rows; r++ {
		complete := true
		for _, col := range cols {
			if math.IsNaN(col[r]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, r)
		}
	}
	return keep, nil
}
