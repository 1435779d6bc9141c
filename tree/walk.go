package tree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pbanos/grove/split"
)

// NodeInfo describes a node of an encoded tree being walked
type NodeInfo struct {
	// Offset of the node within the encoded tree
	Offset    int
	Depth     int
	Leaf      bool
	Class     int
	Strategy  split.Strategy
	Column    int
	Threshold float32
}

/*
Visitor is an interface for objects that get called while walking an
encoded tree: Pre before walking the children of a node, In between
its left and right children and Post after them. Leaves only get Pre
and Post calls. An error returned by any of them aborts the walk.
*/
type Visitor interface {
	Pre(NodeInfo) error
	In(NodeInfo) error
	Post(NodeInfo) error
}

// VisitorFuncs implements Visitor with optional functions
type VisitorFuncs struct {
	PreFunc  func(NodeInfo) error
	InFunc   func(NodeInfo) error
	PostFunc func(NodeInfo) error
}

// Pre calls PreFunc if set
func (vf VisitorFuncs) Pre(n NodeInfo) error {
	if vf.PreFunc == nil {
		return nil
	}
	return vf.PreFunc(n)
}

// In calls InFunc if set
func (vf VisitorFuncs) In(n NodeInfo) error {
	if vf.InFunc == nil {
		return nil
	}
	return vf.InFunc(n)
}

// Post calls PostFunc if set
func (vf VisitorFuncs) Post(n NodeInfo) error {
	if vf.PostFunc == nil {
		return nil
	}
	return vf.PostFunc(n)
}

// Walk goes through the nodes of an encoded tree calling the visitor
// on each of them. It returns an error wrapping ErrCorrupt if the
// bytes are not a valid encoded tree.
func Walk(bits []byte, v Visitor) error {
	if len(bits) < headerSize {
		return fmt.Errorf("walking tree of %d bytes: %w", len(bits), ErrCorrupt)
	}
	end, err := walkNode(bits, headerSize, 0, v)
	if err != nil {
		return err
	}
	if end != len(bits) {
		return fmt.Errorf("walking tree: %d trailing bytes: %w", len(bits)-end, ErrCorrupt)
	}
	return nil
}

func walkNode(bits []byte, off, depth int, v Visitor) (int, error) {
	corrupt := func(reason string) error {
		return fmt.Errorf("walking tree: node at offset %d: %s: %w", off, reason, ErrCorrupt)
	}
	if off >= len(bits) {
		return 0, corrupt("out of bounds")
	}
	n := NodeInfo{Offset: off, Depth: depth}
	switch bits[off] {
	case leafMark:
		if off+leafSize > len(bits) {
			return 0, corrupt("truncated leaf")
		}
		n.Leaf = true
		n.Class = int(bits[off+1])
		if err := v.Pre(n); err != nil {
			return 0, err
		}
		return off + leafSize, v.Post(n)
	case entropyMark:
		n.Strategy = split.Entropy
	case giniMark:
		n.Strategy = split.Gini
	default:
		return 0, corrupt(fmt.Sprintf("unknown mark %#x", bits[off]))
	}
	if off+8 > len(bits) {
		return 0, corrupt("truncated split")
	}
	n.Column = int(binary.LittleEndian.Uint16(bits[off+1:]))
	n.Threshold = math.Float32frombits(binary.LittleEndian.Uint32(bits[off+3:]))
	left := off + 8
	skip := int(bits[off+7])
	if skip == 0 {
		if off+11 > len(bits) {
			return 0, corrupt("truncated skip")
		}
		skip = int(bits[off+8]) | int(bits[off+9])<<8 | int(bits[off+10])<<16
		left = off + 11
	}
	if err := v.Pre(n); err != nil {
		return 0, err
	}
	right, err := walkNode(bits, left, depth+1, v)
	if err != nil {
		return 0, err
	}
	if right != left+skip {
		return 0, corrupt(fmt.Sprintf("left subtree spans %d bytes, skip says %d", right-left, skip))
	}
	if err := v.In(n); err != nil {
		return 0, err
	}
	end, err := walkNode(bits, right, depth+1, v)
	if err != nil {
		return 0, err
	}
	return end, v.Post(n)
}

// Stats returns the depth and the number of leaves of an encoded tree
func Stats(bits []byte) (depth, leaves int, err error) {
	err = Walk(bits, VisitorFuncs{
		PreFunc: func(n NodeInfo) error {
			if n.Leaf {
				leaves++
				if n.Depth > depth {
					depth = n.Depth
				}
			}
			return nil
		},
	})
	return depth, leaves, err
}
