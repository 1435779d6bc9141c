package tree

import (
	"math/rand"
	"testing"

	"github.com/pbanos/grove/split"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomTree returns a random tree of at most the given depth over
// columns 0 to cols-1.
func randomTree(rng *rand.Rand, depth, cols int) *Tree {
	if depth == 0 || rng.Intn(4) == 0 {
		return NewLeaf(rng.Intn(5))
	}
	strategy := split.Entropy
	if rng.Intn(2) == 0 {
		strategy = split.Gini
	}
	return NewSplit(strategy, rng.Intn(cols), float32(rng.Intn(100))+0.5,
		randomTree(rng, depth-1, cols), randomTree(rng, depth-1, cols))
}

func TestEncodeSingleSplit(t *testing.T) {
	tr := NewSplit(split.Entropy, 0, 1.5, NewLeaf(0), NewLeaf(1))
	tr.SubsetID = 7
	bits, err := Encode(tr)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		7, 0, 0, 0,
		'(', 0, 0, 0x00, 0x00, 0xc0, 0x3f, 2,
		'[', 0,
		'[', 1,
	}, bits)
	for i, v := range []float64{1, 1, 2, 2} {
		class := i / 2
		assert.Equal(t, class, Classify(bits, ValueSlice{v}))
		assert.Equal(t, class, tr.Classify(ValueSlice{v}))
	}
	assert.Equal(t, uint32(7), SubsetID(bits))
}

func TestEncodeGiniMark(t *testing.T) {
	tr := NewSplit(split.Gini, 3, 0.5, NewLeaf(2), NewLeaf(1))
	bits, err := Encode(tr)
	require.NoError(t, err)
	assert.Equal(t, byte('S'), bits[4])
	decoded, err := Decode(bits)
	require.NoError(t, err)
	assert.Equal(t, tr, decoded)
}

func TestClassifyMatchesGraph(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		tr := randomTree(rng, 8, 4)
		tr.SubsetID = rng.Uint32()
		bits, err := Encode(tr)
		require.NoError(t, err)
		require.NoError(t, Validate(bits))
		for r := 0; r < 100; r++ {
			row := ValueSlice{float64(rng.Intn(101)), float64(rng.Intn(101)), float64(rng.Intn(101)), float64(rng.Intn(101))}
			assert.Equal(t, tr.Classify(row), Classify(bits, row))
		}
		decoded, err := Decode(bits)
		require.NoError(t, err)
		assert.Equal(t, tr, decoded)
	}
}

func TestLongSkip(t *testing.T) {
	left := NewLeaf(0)
	for i := 0; i < 40; i++ {
		left = NewSplit(split.Entropy, 0, float32(i), NewLeaf(1), left)
	}
	tr := NewSplit(split.Entropy, 1, 10, left, NewLeaf(4))
	bits, err := Encode(tr)
	require.NoError(t, err)
	// the root skips a left subtree of 40 splits and 41 leaves
	assert.Equal(t, byte(0), bits[11])
	skip := int(bits[12]) | int(bits[13])<<8 | int(bits[14])<<16
	assert.Equal(t, 40*8+41*2, skip)
	assert.Equal(t, 4+11+skip+2, len(bits))

	assert.Equal(t, 4, Classify(bits, ValueSlice{0, 11}))
	assert.Equal(t, 1, Classify(bits, ValueSlice{-1, 9}))
	assert.Equal(t, 0, Classify(bits, ValueSlice{100, 9}))
	decoded, err := Decode(bits)
	require.NoError(t, err)
	assert.Equal(t, tr, decoded)
}

func TestEncodeRejectsLargeClasses(t *testing.T) {
	_, err := Encode(NewLeaf(MaxClasses))
	assert.Error(t, err)
}

func TestCorruptTrees(t *testing.T) {
	bits, err := Encode(NewSplit(split.Entropy, 0, 1.5, NewLeaf(0), NewLeaf(1)))
	require.NoError(t, err)

	_, err = Decode(bits[:len(bits)-1])
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, Validate(append(append([]byte{}, bits...), '[', 0)), ErrCorrupt)

	badSkip := append([]byte{}, bits...)
	badSkip[11] = 3
	assert.ErrorIs(t, Validate(badSkip), ErrCorrupt)

	badMark := append([]byte{}, bits...)
	badMark[4] = 'X'
	assert.ErrorIs(t, Validate(badMark), ErrCorrupt)
}

func TestStats(t *testing.T) {
	tr := NewSplit(split.Entropy, 0, 1, NewLeaf(0), NewSplit(split.Entropy, 1, 2, NewLeaf(1), NewLeaf(2)))
	bits, err := Encode(tr)
	require.NoError(t, err)
	depth, leaves, err := Stats(bits)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
	assert.Equal(t, 3, leaves)
	assert.Equal(t, tr.Depth(), depth)
	assert.Equal(t, tr.Leaves(), leaves)
	assert.Equal(t, 5, tr.Size())
}

func TestWalkOrder(t *testing.T) {
	tr := NewSplit(split.Entropy, 0, 1, NewLeaf(0), NewLeaf(1))
	bits, err := Encode(tr)
	require.NoError(t, err)
	var calls []string
	err = Walk(bits, VisitorFuncs{
		PreFunc:  func(n NodeInfo) error { calls = append(calls, "pre"); return nil },
		InFunc:   func(n NodeInfo) error { calls = append(calls, "in"); return nil },
		PostFunc: func(n NodeInfo) error { calls = append(calls, "post"); return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "pre", "post", "in", "pre", "post", "post"}, calls)
}

func TestString(t *testing.T) {
	tr := NewSplit(split.Gini, 2, 0.5, NewLeaf(0), NewLeaf(1))
	assert.Equal(t, "{ column 2 > 0.5 (gini) }\n|\n|__[0]\n|__[1]\n", tr.String())
}
