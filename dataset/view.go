/*
Package dataset provides logical views over a frozen column store:
the root view over every row, subsets resulting from splitting a view
on a column threshold, bootstrap samples drawn with replacement and
their complements.

A view is a range over a permutation of the store's row indexes.
Views resulting from a split share the permutation array of the view
they were split from, so a view must only be split by the goroutine
that owns it, and not be used again once split.
*/
package dataset

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pbanos/grove/column"
)

var (
	// ErrEmptyView is returned when a view with no rows is requested
	ErrEmptyView = errors.New("view has no rows")
	// ErrNotSample is returned when requesting the complement of a view
	// that is not a bootstrap sample
	ErrNotSample = errors.New("view is not a sample")
	// ErrBadWeight is returned when sampling with a weight that is not
	// a positive number
	ErrBadWeight = errors.New("sampling weights must be positive numbers")
)

// Kind tells how a view was obtained
type Kind uint8

// Kinds of views
const (
	Root Kind = iota
	Subset
	Sample
	Complement
)

func (k Kind) String() string {
	switch k {
	case Subset:
		return "subset"
	case Sample:
		return "sample"
	case Complement:
		return "complement"
	}
	return "root"
}

// View is a range [start, end) over a permutation of the row indexes
// of a column store.
type View struct {
	store *column.Store
	perm  []int
	start int
	end   int
	kind  Kind

	seed   int64
	inBag  *roaring.Bitmap
	parent *roaring.Bitmap
}

// NewRoot returns the view over all the rows of a frozen store.
func NewRoot(s *column.Store) (*View, error) {
	if !s.Frozen() {
		return nil, fmt.Errorf("creating root view: %w", column.ErrNotFrozen)
	}
	if s.Rows() == 0 {
		return nil, fmt.Errorf("creating root view: %w", ErrEmptyView)
	}
	perm := make([]int, s.Rows())
	for i := range perm {
		perm[i] = i
	}
	return &View{store: s, perm: perm, end: len(perm), kind: Root}, nil
}

// Store returns the column store underlying the view
func (v *View) Store() *column.Store { return v.store }

// Kind returns how the view was obtained
func (v *View) Kind() Kind { return v.kind }

// Rows returns the number of rows in the view
func (v *View) Rows() int { return v.end - v.start }

// Start returns the position in the permutation array where the view starts
func (v *View) Start() int { return v.start }

// End returns the position in the permutation array where the view ends
func (v *View) End() int { return v.end }

// Permute returns the store row index of the i-th row of the view.
func (v *View) Permute(i int) int { return v.perm[v.start+i] }

// Row returns a cursor over the i-th row of the view
func (v *View) Row(i int) Row { return Row{v.store, v.perm[v.start+i]} }

// Each calls f with every row of the view in order.
func (v *View) Each(f func(Row)) {
	for _, r := range v.perm[v.start:v.end] {
		f(Row{v.store, r})
	}
}

// Subset returns the view over the rows of v in the local range
// [from, to), sharing v's permutation array.
func (v *View) Subset(from, to int) (*View, error) {
	if from < 0 || to > v.Rows() || from > to {
		return nil, fmt.Errorf("subsetting view of %d rows: invalid range [%d, %d)", v.Rows(), from, to)
	}
	if from == to {
		return nil, fmt.Errorf("subsetting view of %d rows at %d: %w", v.Rows(), from, ErrEmptyView)
	}
	return &View{store: v.store, perm: v.perm, start: v.start + from, end: v.start + to, kind: Subset}, nil
}

/*
Filter splits the view into the rows whose value on the given column,
as a float32, is at most the given threshold and those whose value is
greater. The rows are partitioned in place in the view's permutation
array, except for the root view, whose identity permutation is copied
first. Either of the returned views may be empty.
*/
func (v *View) Filter(col int, threshold float32) (*View, *View) {
	goesRight := func(r int) bool {
		return float32(v.store.Value(col, r)) > threshold
	}
	perm := v.perm
	start, end := v.start, v.end
	if v.kind == Root {
		perm = make([]int, v.Rows())
		start, end = 0, len(perm)
		l, r := 0, len(perm)
		for _, row := range v.perm[v.start:v.end] {
			if goesRight(row) {
				r--
				perm[r] = row
			} else {
				perm[l] = row
				l++
			}
		}
		return v.child(perm, start, l), v.child(perm, l, end)
	}
	l, r := start, end-1
	for {
		for l <= r && !goesRight(perm[l]) {
			l++
		}
		for l <= r && goesRight(perm[r]) {
			r--
		}
		if l >= r {
			break
		}
		perm[l], perm[r] = perm[r], perm[l]
		l++
		r--
	}
	return v.child(perm, start, l), v.child(perm, l, end)
}

func (v *View) child(perm []int, start, end int) *View {
	return &View{store: v.store, perm: perm, start: start, end: end, kind: Subset}
}

// ClassCounts returns the number of rows of each class in the view.
func (v *View) ClassCounts() []int {
	classes, _ := v.store.Classes()
	counts := make([]int, classes)
	for _, r := range v.perm[v.start:v.end] {
		counts[v.store.Class(r)]++
	}
	return counts
}

func (v *View) String() string {
	return fmt.Sprintf("{View %s [%d, %d)}", v.kind, v.start, v.end)
}

// Row is a cursor over a row of a column store
type Row struct {
	store *column.Store
	index int
}

// Index returns the row index on the store
func (r Row) Index() int { return r.index }

// Class returns the class of the row
func (r Row) Class() int { return r.store.Class(r.index) }

// Value returns the raw value of the row on the given column
func (r Row) Value(col int) float64 { return r.store.Value(col, r.index) }

// Code returns the quantized code of the row on the given column
func (r Row) Code(col int) int { return r.store.Code(col, r.index) }

// CodeAt returns the code of the row on a column on the given scale
func (r Row) CodeAt(scale column.Scale, col int) int { return r.store.CodeAt(scale, col, r.index) }
