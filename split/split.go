/*
Package split evaluates the best way to split the rows of a node of a
decision tree: it accumulates, for a random subset of the columns, the
class distribution of the rows on every code of the column and picks
the code boundary that best separates the classes. Entropy reduction
evaluates a code per distinct value, Gini impurity a code per bin.
*/
package split

import (
	"fmt"
	"strings"

	"github.com/pbanos/grove/column"
)

// Strategy selects how candidate splits are scored
type Strategy uint8

const (
	// Entropy scores splits by their weighted entropy reduction
	Entropy Strategy = iota
	// Gini scores splits by their weighted Gini impurity
	Gini
)

func (s Strategy) String() string {
	if s == Gini {
		return "gini"
	}
	return "entropy"
}

// Scale returns the scale of the codes the strategy evaluates
// boundaries between: every distinct value for entropy, the bins for
// gini.
func (s Strategy) Scale() column.Scale {
	if s == Gini {
		return column.Binned
	}
	return column.Exact
}

// ParseStrategy returns the strategy with the given name
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "entropy", "":
		return Entropy, nil
	case "gini":
		return Gini, nil
	}
	return Entropy, fmt.Errorf("unknown split strategy %q, valid ones are entropy and gini", name)
}

// MarshalText encodes the strategy as its name
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy from its name
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Sentinel values for the Column of a Split that does not split rows
const (
	// ConstantLeaf marks a node whose rows all have the same class
	ConstantLeaf = -1
	// ImpossibleLeaf marks a node for which no split separates classes
	ImpossibleLeaf = -2
)

/*
Split describes how to split the rows of a node: rows whose code on
Column, on the scale of the strategy, is at most Bin go to the left
child and the rest to the right one. Fitness is higher the better the split is. When Column is one of
the ConstantLeaf and ImpossibleLeaf sentinels, the node should be a
leaf predicting Class instead.
*/
type Split struct {
	Column  int
	Bin     int
	Class   int
	Fitness float64
}

// Constant returns a split telling the node should be a leaf with
// the given class, the only one present on its rows.
func Constant(class int) Split {
	return Split{Column: ConstantLeaf, Class: class}
}

// Impossible returns a split telling no column separates the rows of
// the node, which should be a leaf with the given majority class.
func Impossible(class int) Split {
	return Split{Column: ImpossibleLeaf, Class: class}
}

// IsLeaf returns whether the split is one of the leaf sentinels
func (s Split) IsLeaf() bool {
	return s.Column < 0
}

func (s Split) String() string {
	switch s.Column {
	case ConstantLeaf:
		return fmt.Sprintf("{constant %d}", s.Class)
	case ImpossibleLeaf:
		return fmt.Sprintf("{impossible %d}", s.Class)
	}
	return fmt.Sprintf("{column %d <= %d (%.4f)}", s.Column, s.Bin, s.Fitness)
}

// Bound is the range [Lo, Hi] of codes a column can take on the rows
// of a node.
type Bound struct {
	Lo int
	Hi int
}

// Constant returns whether the bound allows a single code
func (b Bound) Constant() bool { return b.Lo >= b.Hi }

// ChildBounds returns the bounds of the left and right children of a
// node with the given bounds split by the given split.
func ChildBounds(bounds []Bound, s Split) ([]Bound, []Bound) {
	left := make([]Bound, len(bounds))
	right := make([]Bound, len(bounds))
	copy(left, bounds)
	copy(right, bounds)
	if s.Bin < left[s.Column].Hi {
		left[s.Column].Hi = s.Bin
	}
	if s.Bin+1 > right[s.Column].Lo {
		right[s.Column].Lo = s.Bin + 1
	}
	return left, right
}
