package column

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultCapacity = 100
	growth          = 1.5
	// MaxBins is the maximum number of distinct codes a column can
	// be quantized into, as codes are stored in 16 bits.
	MaxBins = 1 << 16
)

// Kind is the numeric representation a frozen column keeps its
// values in.
type Kind uint8

// Representations, from the widest to the narrowest
const (
	Double Kind = iota
	Float
	Int
	Byte
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case Byte:
		return "byte"
	}
	return "double"
}

/*
Scale selects which codes of a frozen column are read: Binned codes
quantize the values into at most the bin limit, Exact codes give every
distinct value a code of its own.
*/
type Scale uint8

// Scales of the codes of a column
const (
	Binned Scale = iota
	Exact
)

// Bin is the range of raw values [Lo, Hi] quantized into one code.
type Bin struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

/*
Column is a growable array of numeric values that keeps track of
the count, minimum, maximum, total and decimal precision of the
values appended to it.

Once frozen a column no longer accepts values, stores them in the
narrowest representation able to hold them and has a quantization
table mapping every value to a short code.
*/
type Column struct {
	name      string
	values    []float64
	count     int
	min       float64
	max       float64
	total     float64
	precision int

	frozen  bool
	kind    Kind
	base    float64
	bytes   []uint8
	ints    []int32
	floats  []float32
	doubles []float64
	codes   []uint16
	bins    []Bin
	// exact codes and the distinct values they index, only kept
	// when there are more distinct values than bins
	exact    []uint32
	distinct []float64
}

func newColumn(name string) *Column {
	return &Column{
		name:   name,
		values: make([]float64, 0, defaultCapacity),
		min:    math.Inf(1),
		max:    math.Inf(-1),
	}
}

// Name returns the name of the column
func (c *Column) Name() string { return c.name }

// Count returns the number of values in the column
func (c *Column) Count() int { return c.count }

// Min returns the smallest value appended to the column
func (c *Column) Min() float64 { return c.min }

// Max returns the largest value appended to the column
func (c *Column) Max() float64 { return c.max }

// Total returns the sum of the values appended to the column
func (c *Column) Total() float64 { return c.total }

// Precision returns the maximum number of digits after the decimal
// point seen among the values appended to the column.
func (c *Column) Precision() int { return c.precision }

// Kind returns the representation chosen for the column on freeze.
func (c *Column) Kind() Kind { return c.kind }

// Bins returns the number of codes values were quantized into.
func (c *Column) Bins() int { return len(c.bins) }

// Bin returns the range of raw values quantized into the given code.
func (c *Column) Bin(code int) Bin { return c.bins[code] }

func (c *Column) add(v float64) {
	if len(c.values) == cap(c.values) {
		grown := make([]float64, len(c.values), int(float64(cap(c.values))*growth)+1)
		copy(grown, c.values)
		c.values = grown
	}
	c.values = append(c.values, v)
	c.count++
	c.total += v
	if v < c.min {
		c.min = v
	}
	if v > c.max {
		c.max = v
	}
	if p := decimals(v); p > c.precision {
		c.precision = p
	}
}

// Value returns the raw value of the given row.
func (c *Column) Value(row int) float64 {
	if !c.frozen {
		return c.values[row]
	}
	switch c.kind {
	case Byte:
		return c.base + float64(c.bytes[row])
	case Int:
		return float64(c.ints[row])
	case Float:
		return float64(c.floats[row])
	}
	return c.doubles[row]
}

// Code returns the quantized code of the given row.
func (c *Column) Code(row int) int { return int(c.codes[row]) }

// Codes returns the number of codes of the column on the given scale
func (c *Column) Codes(scale Scale) int {
	if scale == Exact && c.distinct != nil {
		return len(c.distinct)
	}
	return len(c.bins)
}

// CodeAt returns the code of the given row on the given scale
func (c *Column) CodeAt(scale Scale, row int) int {
	if scale == Exact && c.exact != nil {
		return int(c.exact[row])
	}
	return int(c.codes[row])
}

// Threshold returns the 32 bit split point between the given code and
// the next one: values whose float32 representation is greater than
// it belong to codes above the given one.
func (c *Column) Threshold(code int) float32 {
	return c.ThresholdAt(Binned, code)
}

// ThresholdAt returns the split point between the given code and the
// next one on the given scale
func (c *Column) ThresholdAt(scale Scale, code int) float32 {
	var hi, lo float64
	if scale == Exact && c.distinct != nil {
		hi = c.distinct[code]
		if code+1 >= len(c.distinct) {
			return float32(hi)
		}
		lo = c.distinct[code+1]
	} else {
		hi = c.bins[code].Hi
		if code+1 >= len(c.bins) {
			return float32(hi)
		}
		lo = c.bins[code+1].Lo
	}
	t := float32((hi + lo) / 2)
	if float32(hi) <= t && float32(lo) > t {
		return t
	}
	return float32(hi)
}

// freeze quantizes the column into at most binLimit codes (no limit
// other than MaxBins if binLimit is 0), keeping exact codes when
// values had to share bins, and narrows its representation.
func (c *Column) freeze(binLimit int) {
	if c.frozen {
		return
	}
	c.quantize(binLimit)
	c.represent()
	c.values = nil
	c.frozen = true
}

func (c *Column) quantize(binLimit int) {
	distinct := make([]float64, len(c.values))
	copy(distinct, c.values)
	sort.Float64s(distinct)
	n := 0
	for i, v := range distinct {
		if i == 0 || v != distinct[n-1] {
			distinct[n] = v
			n++
		}
	}
	distinct = distinct[:n]
	if binLimit <= 0 || binLimit > MaxBins {
		binLimit = MaxBins
	}
	bins := n
	if bins > binLimit {
		bins = binLimit
	}
	binOf := func(i int) int {
		if n <= binLimit {
			return i
		}
		return i * binLimit / n
	}
	c.bins = make([]Bin, bins)
	for i, v := range distinct {
		b := binOf(i)
		if i == 0 || binOf(i-1) != b {
			c.bins[b].Lo = v
		}
		c.bins[b].Hi = v
	}
	c.codes = make([]uint16, len(c.values))
	if n > bins {
		c.distinct = distinct
		c.exact = make([]uint32, len(c.values))
	}
	for row, v := range c.values {
		i := sort.SearchFloat64s(distinct, v)
		c.codes[row] = uint16(binOf(i))
		if c.exact != nil {
			c.exact[row] = uint32(i)
		}
	}
}

func (c *Column) represent() {
	integral := c.precision == 0
	switch {
	case c.count == 0:
		c.kind = Byte
		c.base = 0
	case integral && c.max-c.min <= math.MaxUint8:
		c.kind = Byte
		c.base = c.min
		c.bytes = make([]uint8, len(c.values))
		for i, v := range c.values {
			c.bytes[i] = uint8(v - c.base)
		}
	case integral && c.min >= math.MinInt32 && c.max <= math.MaxInt32:
		c.kind = Int
		c.ints = make([]int32, len(c.values))
		for i, v := range c.values {
			c.ints[i] = int32(v)
		}
	case fitsFloat32(c.values):
		c.kind = Float
		c.floats = make([]float32, len(c.values))
		for i, v := range c.values {
			c.floats[i] = float32(v)
		}
	default:
		c.kind = Double
		c.doubles = c.values
	}
}

func fitsFloat32(values []float64) bool {
	for _, v := range values {
		if float64(float32(v)) != v {
			return false
		}
	}
	return true
}

// decimals counts the digits after the decimal point of the shortest
// representation of v.
func decimals(v float64) int {
	if math.IsInf(v, 0) || math.IsNaN(v) || v == math.Trunc(v) {
		return 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
