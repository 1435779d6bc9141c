/*
Package confusion scores forests against datasets. Every row of a
dataset gets the votes of the trees of a forest, kept per chunk of rows
in vote tables that grow as the forest does, and the class with the
most votes is compared to the row's class on a confusion matrix.
*/
package confusion

import (
	"fmt"
	"strings"
)

// Matrix is a confusion matrix: the count of rows of each actual
// class (first index) predicted as each class (second index)
type Matrix [][]int64

// NewMatrix returns an empty matrix for the given number of classes
func NewMatrix(classes int) Matrix {
	m := make(Matrix, classes)
	for i := range m {
		m[i] = make([]int64, classes)
	}
	return m
}

// Classes returns the number of classes of the matrix
func (m Matrix) Classes() int { return len(m) }

// Add adds the counts of another matrix of the same size to m
func (m Matrix) Add(o Matrix) error {
	if len(o) != len(m) {
		return fmt.Errorf("adding confusion matrix of %d classes to one of %d", len(o), len(m))
	}
	for i := range m {
		if len(o[i]) != len(m[i]) {
			return fmt.Errorf("adding confusion matrix with row %d of %d classes to one of %d", i, len(o[i]), len(m[i]))
		}
		for j := range m[i] {
			m[i][j] += o[i][j]
		}
	}
	return nil
}

// Total returns the number of rows counted
func (m Matrix) Total() int64 {
	var total int64
	for i := range m {
		for _, n := range m[i] {
			total += n
		}
	}
	return total
}

// Errors returns the number of rows predicted wrong
func (m Matrix) Errors() int64 {
	var errs int64
	for i := range m {
		for j, n := range m[i] {
			if i != j {
				errs += n
			}
		}
	}
	return errs
}

// ErrorRate returns the fraction of rows predicted wrong, or 0 if no
// rows were counted
func (m Matrix) ErrorRate() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.Errors()) / float64(total)
}

// ClassError returns the fraction of the rows of the given class that
// were predicted wrong, or 0 if there were none
func (m Matrix) ClassError(class int) float64 {
	var total int64
	for _, n := range m[class] {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(total-m[class][class]) / float64(total)
}

func (m Matrix) String() string {
	return m.Format(nil)
}

/*
Format renders the matrix as a table with a row per actual class and a
column per predicted class, followed by the error of each class and the
overall error. Classes are named after the given names, or their index
when there is no name for them.
*/
func (m Matrix) Format(names []string) string {
	name := func(c int) string {
		if c < len(names) {
			return names[c]
		}
		return fmt.Sprintf("%d", c)
	}
	width := len("Actual")
	for c := range m {
		if l := len(name(c)); l > width {
			width = l
		}
		for _, n := range m[c] {
			if l := len(fmt.Sprintf("%d", n)); l > width {
				width = l
			}
		}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-*s", width, "Actual")
	for c := range m {
		fmt.Fprintf(&sb, " %*s", width, name(c))
	}
	fmt.Fprintf(&sb, " %*s\n", width, "Error")
	for i := range m {
		fmt.Fprintf(&sb, "%-*s", width, name(i))
		for _, n := range m[i] {
			fmt.Fprintf(&sb, " %*d", width, n)
		}
		fmt.Fprintf(&sb, " %*.3f\n", width, m.ClassError(i))
	}
	fmt.Fprintf(&sb, "Total error: %.3f (%d/%d)\n", m.ErrorRate(), m.Errors(), m.Total())
	return sb.String()
}
