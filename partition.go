package grove

import (
	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/split"
)

/*
Partition represents a partition of the rows of a node according to a
split into the rows of its left and right subtrees, along with the
bounds of the codes of every column on each side
*/
type Partition struct {
	split.Split
	// Threshold is the split point between the rows going left and
	// the ones going right, as encoded in the tree
	Threshold   float32
	Left        *dataset.View
	Right       *dataset.View
	LeftBounds  []split.Bound
	RightBounds []split.Bound
}

/*
NewPartition takes a view of the rows of a node, the bounds of its
columns, a split and the scale of its codes, and partitions the rows
by the threshold between the split's code and the next one on the
split's column. The view must
not be used by anyone else, as its rows are rearranged in place.
*/
func NewPartition(v *dataset.View, bounds []split.Bound, s split.Split, scale column.Scale) *Partition {
	threshold := v.Store().ThresholdAt(scale, s.Column, s.Bin)
	left, right := v.Filter(s.Column, threshold)
	lb, rb := split.ChildBounds(bounds, s)
	return &Partition{
		Split:       s,
		Threshold:   threshold,
		Left:        left,
		Right:       right,
		LeftBounds:  lb,
		RightBounds: rb,
	}
}
