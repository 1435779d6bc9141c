/*
Package tree provides decision trees in the two representations they
go through: a graph of nodes kept in an arena, produced while growing
a tree, and a compact byte encoding that rows can be classified
against directly, without decoding it back into a graph.
*/
package tree

import (
	"fmt"
	"strings"

	"github.com/pbanos/grove/split"
)

// Values is an interface for rows whose raw value on every column
// can be read, like dataset.Row.
type Values interface {
	Value(col int) float64
}

// ValueSlice is a row of raw values indexed by column
type ValueSlice []float64

// Value returns the raw value on the given column
func (vs ValueSlice) Value(col int) float64 { return vs[col] }

/*
Node is a node of the tree. Leaf nodes predict Class. Split nodes
send rows whose value on Column, as a float32, is greater than
Threshold to the node at index Right and the rest to the node at
index Left.
*/
type Node struct {
	Leaf      bool
	Class     int
	Strategy  split.Strategy
	Column    int
	Threshold float32
	Left      int
	Right     int
}

// Tree represents a decision tree. Its nodes are kept in an arena
// in pre-order, the root being the first one. SubsetID identifies the
// sample of the training data the tree was grown from.
type Tree struct {
	SubsetID uint32
	Nodes    []Node
}

// NewLeaf returns a tree consisting of a single leaf predicting the
// given class.
func NewLeaf(class int) *Tree {
	return &Tree{Nodes: []Node{{Leaf: true, Class: class}}}
}

// NewSplit returns a tree whose root splits rows on the given column
// and threshold into the given left and right subtrees. The nodes of
// the subtrees are copied into the new tree.
func NewSplit(strategy split.Strategy, col int, threshold float32, left, right *Tree) *Tree {
	t := &Tree{Nodes: make([]Node, 1, 1+len(left.Nodes)+len(right.Nodes))}
	t.Nodes[0] = Node{Strategy: strategy, Column: col, Threshold: threshold, Left: 1, Right: 1 + len(left.Nodes)}
	t.graft(left)
	t.graft(right)
	return t
}

func (t *Tree) graft(st *Tree) {
	offset := len(t.Nodes)
	for _, n := range st.Nodes {
		if !n.Leaf {
			n.Left += offset
			n.Right += offset
		}
		t.Nodes = append(t.Nodes, n)
	}
}

// Classify takes a row and returns the class the tree predicts for it
func (t *Tree) Classify(v Values) int {
	n := &t.Nodes[0]
	for !n.Leaf {
		if float32(v.Value(n.Column)) > n.Threshold {
			n = &t.Nodes[n.Right]
		} else {
			n = &t.Nodes[n.Left]
		}
	}
	return n.Class
}

// Size returns the number of nodes in the tree
func (t *Tree) Size() int { return len(t.Nodes) }

// Depth returns the number of splits on the longest path from the
// root to a leaf.
func (t *Tree) Depth() int {
	var depth int
	t.Traverse(false, func(d int, n *Node) error {
		if d > depth {
			depth = d
		}
		return nil
	})
	return depth
}

// Leaves returns the number of leaves in the tree
func (t *Tree) Leaves() int {
	var leaves int
	for i := range t.Nodes {
		if t.Nodes[i].Leaf {
			leaves++
		}
	}
	return leaves
}

// Traverse takes a bottomup boolean and an error-returning function
// that takes a depth and a node as parameters, and goes through the
// tree running the function with every traversed node and its depth.
// Traverse will call the function with a parent node before
// calling it for its children if bottomup is false, and
// call it after its children if bottomup is true.
// If the call to the function returns an error, the traversing is
// aborted and the error is returned.
func (t *Tree) Traverse(bottomup bool, f func(int, *Node) error) error {
	if len(t.Nodes) == 0 {
		return nil
	}
	return t.walk(0, 0, bottomup, func(i, depth int) error {
		return f(depth, &t.Nodes[i])
	})
}

func (t *Tree) walk(i, depth int, bottomup bool, f func(i, depth int) error) error {
	n := &t.Nodes[i]
	if !bottomup {
		if err := f(i, depth); err != nil {
			return err
		}
	}
	if !n.Leaf {
		if err := t.walk(n.Left, depth+1, bottomup, f); err != nil {
			return err
		}
		if err := t.walk(n.Right, depth+1, bottomup, f); err != nil {
			return err
		}
	}
	if bottomup {
		return f(i, depth)
	}
	return nil
}

func (t *Tree) String() string {
	if len(t.Nodes) == 0 {
		return "[]\n"
	}
	return t.subtreeString(0)
}

func (t *Tree) subtreeString(i int) string {
	n := &t.Nodes[i]
	if n.Leaf {
		return fmt.Sprintf("[%d]\n", n.Class)
	}
	result := fmt.Sprintf("{ column %d > %v (%v) }\n|\n", n.Column, n.Threshold, n.Strategy)
	children := []int{n.Left, n.Right}
	for ci, child := range children {
		for j, line := range strings.Split(t.subtreeString(child), "\n") {
			if len(line) == 0 {
				continue
			}
			switch {
			case j == 0:
				result = fmt.Sprintf("%s|__%s\n", result, line)
			case ci == len(children)-1:
				result = fmt.Sprintf("%s   %s\n", result, line)
			default:
				result = fmt.Sprintf("%s|  %s\n", result, line)
			}
		}
	}
	return result
}
