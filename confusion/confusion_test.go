package confusion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix(t *testing.T) {
	m := NewMatrix(2)
	m[0][0] = 3
	m[1][0] = 1
	m[1][1] = 4
	assert.Equal(t, 2, m.Classes())
	assert.Equal(t, int64(8), m.Total())
	assert.Equal(t, int64(1), m.Errors())
	assert.InDelta(t, 0.125, m.ErrorRate(), 1e-12)
	assert.InDelta(t, 0.0, m.ClassError(0), 1e-12)
	assert.InDelta(t, 0.2, m.ClassError(1), 1e-12)
	assert.Contains(t, m.Format([]string{"no", "yes"}), "Total error: 0.125 (1/8)")
	assert.Contains(t, m.String(), "Actual")

	o := NewMatrix(2)
	o[0][1] = 2
	require.NoError(t, m.Add(o))
	assert.Equal(t, int64(2), m[0][1])
	assert.Error(t, m.Add(NewMatrix(3)))
	assert.InDelta(t, 0.0, NewMatrix(2).ErrorRate(), 1e-12)
}

func TestVoteTable(t *testing.T) {
	vt := NewVoteTable(2, 3)
	vt.Vote(0, 2)
	vt.Abstain(1)
	assert.ErrorIs(t, vt.Check(), ErrVoteMismatch)
	vt.Processed = 1
	require.NoError(t, vt.Check())
	vt.Vote(0, 1)
	vt.Vote(1, 0)
	vt.Processed++
	require.NoError(t, vt.Check())
	assert.Equal(t, []uint32{0, 1, 1}, vt.Votes(0))
	assert.Equal(t, uint32(1), vt.Abstentions(1))

	data, err := vt.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, voteTableHeader+4*2*4)
	decoded, err := UnmarshalVoteTable(data)
	require.NoError(t, err)
	assert.Equal(t, vt, decoded)

	_, err = UnmarshalVoteTable(data[:len(data)-1])
	assert.Error(t, err)
	_, err = UnmarshalVoteTable(data[:3])
	assert.Error(t, err)
}

func TestMajority(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c, ok := majority([]uint32{3, 1}, false, rng)
	assert.True(t, ok)
	assert.Equal(t, 0, c)
	_, ok = majority([]uint32{0, 0}, true, rng)
	assert.False(t, ok)
	_, ok = majority([]uint32{2, 0, 2}, false, rng)
	assert.False(t, ok)

	picked := map[int]bool{}
	for i := 0; i < 100; i++ {
		c, ok := majority([]uint32{2, 0, 2}, true, rng)
		require.True(t, ok)
		picked[c] = true
	}
	assert.Equal(t, map[int]bool{0: true, 2: true}, picked)
}
