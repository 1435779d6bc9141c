/*
Package column provides the column store training data is kept in:
typed growable columns that, once frozen, are immutable and quantize
their values into short codes that split statistics count over.
*/
package column

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrFrozen is returned when appending rows to a frozen store
	ErrFrozen = errors.New("column store is frozen")
	// ErrNotFrozen is returned when querying a store for properties
	// that are only defined once it is frozen
	ErrNotFrozen = errors.New("column store is not frozen")
	// ErrClassNotLast is returned when building a store whose class
	// column is not the last one
	ErrClassNotLast = errors.New("class column must be the last column")
)

/*
Store is an ordered list of columns, the last of which holds the
class of every row. Rows are appended with AddRow until Freeze is
called, after which the store is read-only and can be shared by any
number of goroutines.
*/
type Store struct {
	columns []*Column
	index   map[string]int
	rows    int
	frozen  bool
	classes int
}

// New takes the names of the columns of the store and the index of
// the class column among them and returns an empty store or an error
// if the class column is not the last one.
func New(names []string, classColumn int) (*Store, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("creating column store: need at least one feature and a class column, got %d columns", len(names))
	}
	if classColumn != len(names)-1 {
		return nil, fmt.Errorf("creating column store with class column %d of %d: %w", classColumn, len(names), ErrClassNotLast)
	}
	s := &Store{
		columns: make([]*Column, len(names)),
		index:   make(map[string]int, len(names)),
	}
	for i, n := range names {
		if _, ok := s.index[n]; ok {
			return nil, fmt.Errorf("creating column store: duplicated column %q", n)
		}
		s.index[n] = i
		s.columns[i] = newColumn(n)
	}
	return s, nil
}

// AddRow appends one value per column to the store.
func (s *Store) AddRow(values []float64) error {
	if s.frozen {
		return ErrFrozen
	}
	if len(values) != len(s.columns) {
		return fmt.Errorf("adding row %d: expected %d values, got %d", s.rows, len(s.columns), len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("adding row %d: column %q: invalid value %v", s.rows, s.columns[i].name, v)
		}
	}
	class := values[len(values)-1]
	if class < 0 || class != math.Trunc(class) {
		return fmt.Errorf("adding row %d: invalid class %v", s.rows, class)
	}
	for i, v := range values {
		s.columns[i].add(v)
	}
	s.rows++
	return nil
}

// Freeze makes the store read-only, quantizing every feature column
// into at most binLimit codes (0 leaves distinct values their own
// code) and narrowing each column's representation. Freezing a frozen
// store does nothing.
func (s *Store) Freeze(binLimit int) error {
	if s.frozen {
		return nil
	}
	if s.rows == 0 {
		return fmt.Errorf("freezing column store: no rows")
	}
	last := len(s.columns) - 1
	for i, c := range s.columns {
		if i == last {
			c.freeze(0)
		} else {
			c.freeze(binLimit)
		}
	}
	s.classes = int(s.columns[last].max) + 1
	s.frozen = true
	return nil
}

// Frozen returns whether the store has been frozen
func (s *Store) Frozen() bool { return s.frozen }

// Rows returns the number of rows in the store
func (s *Store) Rows() int { return s.rows }

// Columns returns the number of columns, the class one included
func (s *Store) Columns() int { return len(s.columns) }

// ClassColumn returns the index of the class column
func (s *Store) ClassColumn() int { return len(s.columns) - 1 }

// Classes returns the number of classes, that is, the maximum class
// found on the class column plus one.
func (s *Store) Classes() (int, error) {
	if !s.frozen {
		return 0, ErrNotFrozen
	}
	return s.classes, nil
}

// Column returns the column at the given index
func (s *Store) Column(i int) *Column { return s.columns[i] }

// Index returns the index of the column with the given name.
func (s *Store) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Names returns the names of the columns in order
func (s *Store) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return names
}

// Value returns the raw value for the given column and row
func (s *Store) Value(col, row int) float64 { return s.columns[col].Value(row) }

// Code returns the quantized code for the given column and row
func (s *Store) Code(col, row int) int { return s.columns[col].Code(row) }

// Class returns the class of the given row
func (s *Store) Class(row int) int { return int(s.columns[len(s.columns)-1].Value(row)) }

// Threshold returns the split point between the given code of a
// column and the next one.
func (s *Store) Threshold(col, code int) float32 { return s.columns[col].Threshold(code) }

// CodeAt returns the code of a row on a column on the given scale
func (s *Store) CodeAt(scale Scale, col, row int) int { return s.columns[col].CodeAt(scale, row) }

// ThresholdAt returns the split point between a code of a column and
// the next one on the given scale
func (s *Store) ThresholdAt(scale Scale, col, code int) float32 {
	return s.columns[col].ThresholdAt(scale, code)
}

// Features returns the number of features to evaluate on every split:
// n if positive or the rounded square root of the number of columns
// otherwise. It returns an error unless 0 < features < columns.
func (s *Store) Features(n int) (int, error) {
	if n <= 0 {
		n = int(math.Round(math.Sqrt(float64(len(s.columns)))))
	}
	if n <= 0 || n >= len(s.columns) {
		return 0, fmt.Errorf("number of features %d out of range (0, %d)", n, len(s.columns))
	}
	return n, nil
}

// ClassCounts returns the number of rows of each class.
func (s *Store) ClassCounts() ([]int, error) {
	if !s.frozen {
		return nil, ErrNotFrozen
	}
	counts := make([]int, s.classes)
	for r := 0; r < s.rows; r++ {
		counts[s.Class(r)]++
	}
	return counts, nil
}
