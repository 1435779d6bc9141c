package confusion

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrVoteMismatch is returned when the votes of a row do not add up to
// the trees processed, which means trees were counted twice or lost
var ErrVoteMismatch = errors.New("votes do not add up to trees processed")

const voteTableHeader = 4 + 4 + 2

/*
VoteTable holds the votes of the trees of a forest for every row of a
chunk of a dataset: a counter per class, plus a counter of the trees
that abstained on the row because it was in their bootstrap sample.
Processed is the number of trees applied to the table, so every row's
votes and abstentions add up to it.

Vote tables are encoded little-endian as:

	u32 processed, u32 rows, u16 classes,
	rows x (classes + 1) u32 counters
*/
type VoteTable struct {
	Processed int
	rows      int
	classes   int
	counts    []uint32
}

// NewVoteTable returns an empty vote table
func NewVoteTable(rows, classes int) *VoteTable {
	return &VoteTable{rows: rows, classes: classes, counts: make([]uint32, rows*(classes+1))}
}

// Rows returns the number of rows of the table
func (vt *VoteTable) Rows() int { return vt.rows }

// Classes returns the number of classes of the table
func (vt *VoteTable) Classes() int { return vt.classes }

// Vote counts a vote for the given class on the given row
func (vt *VoteTable) Vote(row, class int) {
	vt.counts[row*(vt.classes+1)+class]++
}

// Abstain counts an abstention on the given row
func (vt *VoteTable) Abstain(row int) {
	vt.counts[row*(vt.classes+1)+vt.classes]++
}

// Votes returns the votes of each class on the given row
func (vt *VoteTable) Votes(row int) []uint32 {
	off := row * (vt.classes + 1)
	return vt.counts[off : off+vt.classes]
}

// Abstentions returns the abstentions on the given row
func (vt *VoteTable) Abstentions(row int) uint32 {
	return vt.counts[row*(vt.classes+1)+vt.classes]
}

// Check returns an error wrapping ErrVoteMismatch if the votes and
// abstentions of a row do not add up to the trees processed
func (vt *VoteTable) Check() error {
	for r := 0; r < vt.rows; r++ {
		var sum uint64
		for _, n := range vt.counts[r*(vt.classes+1) : (r+1)*(vt.classes+1)] {
			sum += uint64(n)
		}
		if sum != uint64(vt.Processed) {
			return fmt.Errorf("row %d has %d votes for %d trees: %w", r, sum, vt.Processed, ErrVoteMismatch)
		}
	}
	return nil
}

// MarshalBinary encodes the vote table
func (vt *VoteTable) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, voteTableHeader+4*len(vt.counts))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(vt.Processed))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(vt.rows))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(vt.classes))
	for _, n := range vt.counts {
		buf = binary.LittleEndian.AppendUint32(buf, n)
	}
	return buf, nil
}

// UnmarshalVoteTable decodes a vote table encoded with MarshalBinary
func UnmarshalVoteTable(data []byte) (*VoteTable, error) {
	if len(data) < voteTableHeader {
		return nil, fmt.Errorf("decoding vote table of %d bytes: too short", len(data))
	}
	processed := int(binary.LittleEndian.Uint32(data))
	rows := int(binary.LittleEndian.Uint32(data[4:]))
	classes := int(binary.LittleEndian.Uint16(data[8:]))
	if len(data) != voteTableHeader+4*rows*(classes+1) {
		return nil, fmt.Errorf("decoding vote table of %d rows and %d classes: %d bytes", rows, classes, len(data))
	}
	vt := NewVoteTable(rows, classes)
	vt.Processed = processed
	for i := range vt.counts {
		vt.counts[i] = binary.LittleEndian.Uint32(data[voteTableHeader+4*i:])
	}
	return vt, nil
}
