package tree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pbanos/grove/split"
)

/*
Encoded trees are laid out as follows, all integers little-endian:

	tree  := u32 subsetID, node
	node  := leaf | split
	leaf  := '[' , u8 class
	split := indicator, u16 column, f32 threshold, skip, node(left), node(right)
	indicator := '(' for entropy splits | 'S' for gini splits
	skip  := u8 length of the left subtree, when at most 254
	       | 0x00, u24 length of the left subtree
*/
const (
	leafMark    = '['
	entropyMark = '('
	giniMark    = 'S'

	headerSize = 4
	leafSize   = 2
	// MaxClasses is the number of classes a leaf can encode
	MaxClasses = 100
	// MaxColumn is the largest column index a split can encode
	MaxColumn = math.MaxUint16

	maxShortSkip = 254
	maxLongSkip  = 1<<24 - 1
)

var (
	// ErrCorrupt is returned when decoding bytes that are not a valid tree
	ErrCorrupt = errors.New("corrupt encoded tree")
	// ErrTooLarge is returned when encoding a tree with a left subtree
	// too large to skip
	ErrTooLarge = errors.New("subtree too large to encode")
)

// Encode returns the byte encoding of the tree.
func Encode(t *Tree) ([]byte, error) {
	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("encoding tree: no nodes")
	}
	sizes := make([]int, len(t.Nodes))
	err := t.walk(0, 0, true, func(i, _ int) error {
		n := &t.Nodes[i]
		if n.Leaf {
			if n.Class < 0 || n.Class >= MaxClasses {
				return fmt.Errorf("encoding tree: class %d out of range [0, %d)", n.Class, MaxClasses)
			}
			sizes[i] = leafSize
			return nil
		}
		if n.Column < 0 || n.Column > MaxColumn {
			return fmt.Errorf("encoding tree: column %d out of range [0, %d]", n.Column, MaxColumn)
		}
		left := sizes[n.Left]
		if left > maxLongSkip {
			return fmt.Errorf("encoding tree: left subtree of %d bytes: %w", left, ErrTooLarge)
		}
		sizes[i] = 1 + 2 + 4 + skipSize(left) + left + sizes[n.Right]
		return nil
	})
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize, headerSize+sizes[0])
	binary.LittleEndian.PutUint32(buf, t.SubsetID)
	err = t.walk(0, 0, false, func(i, _ int) error {
		n := &t.Nodes[i]
		if n.Leaf {
			buf = append(buf, leafMark, byte(n.Class))
			return nil
		}
		mark := byte(entropyMark)
		if n.Strategy == split.Gini {
			mark = giniMark
		}
		buf = append(buf, mark)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(n.Column))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.Threshold))
		left := sizes[n.Left]
		if left <= maxShortSkip {
			buf = append(buf, byte(left))
		} else {
			buf = append(buf, 0, byte(left), byte(left>>8), byte(left>>16))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func skipSize(left int) int {
	if left <= maxShortSkip {
		return 1
	}
	return 4
}

// SubsetID returns the subset ID of an encoded tree
func SubsetID(bits []byte) uint32 {
	return binary.LittleEndian.Uint32(bits)
}

/*
Classify takes an encoded tree and a row and returns the class the
tree predicts for the row. It walks the bytes from the root: on every
split the left subtree immediately follows, so rows going left just
carry on, and rows going right skip the length of the left subtree.
The bytes must hold a valid encoded tree, as returned by Encode or
accepted by Validate.
*/
func Classify(bits []byte, v Values) int {
	off := headerSize
	for bits[off] != leafMark {
		col := int(binary.LittleEndian.Uint16(bits[off+1:]))
		threshold := math.Float32frombits(binary.LittleEndian.Uint32(bits[off+3:]))
		off += 7
		skip := int(bits[off])
		off++
		if skip == 0 {
			skip = int(bits[off]) | int(bits[off+1])<<8 | int(bits[off+2])<<16
			off += 3
		}
		if float32(v.Value(col)) > threshold {
			off += skip
		}
	}
	return int(bits[off+1])
}

// Decode returns the tree encoded in the given bytes.
func Decode(bits []byte) (*Tree, error) {
	if len(bits) < headerSize+leafSize {
		return nil, fmt.Errorf("decoding tree of %d bytes: %w", len(bits), ErrCorrupt)
	}
	t := &Tree{SubsetID: SubsetID(bits)}
	var stack []int
	err := Walk(bits, VisitorFuncs{
		PreFunc: func(n NodeInfo) error {
			node := Node{Leaf: n.Leaf, Class: n.Class, Strategy: n.Strategy, Column: n.Column, Threshold: n.Threshold}
			i := len(t.Nodes)
			t.Nodes = append(t.Nodes, node)
			if len(stack) > 0 {
				parent := &t.Nodes[stack[len(stack)-1]]
				if parent.Left == 0 {
					parent.Left = i
				} else {
					parent.Right = i
				}
			}
			if !n.Leaf {
				stack = append(stack, i)
			}
			return nil
		},
		PostFunc: func(n NodeInfo) error {
			if !n.Leaf {
				stack = stack[:len(stack)-1]
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Validate returns an error if the given bytes are not a valid
// encoded tree.
func Validate(bits []byte) error {
	if len(bits) < headerSize+leafSize {
		return fmt.Errorf("validating tree of %d bytes: %w", len(bits), ErrCorrupt)
	}
	return Walk(bits, VisitorFuncs{})
}
