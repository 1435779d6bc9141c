package split

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
)

// Config holds the parameters shared by the statistics of every node
// of a tree.
type Config struct {
	Strategy Strategy
	// Features is the number of columns evaluated on every node
	Features int
	// Ignored holds the indexes of the columns never evaluated
	Ignored []int
	// ClassWeights scales the mass of the rows of every class.
	// Classes without a weight weigh 1.
	ClassWeights []float64
}

/*
Statistic accumulates the rows of a node into one contingency table
per selected column, with the mass of every class on every code of
the column, and finds the best split among them.

A Statistic belongs to the goroutine building the node it was reset
for and is not safe for concurrent use.
*/
type Statistic struct {
	store    *column.Store
	config   Config
	scale    column.Scale
	classes  int
	usable   []int
	rng      *rand.Rand
	bounds   []Bound
	selected []int
	tables   [][]float64
	dist     []float64
	weight   float64
	rows     int
}

// New returns a statistic over the given frozen store, drawing random
// numbers from the given source, or an error if the configuration is
// not valid for the store.
func New(store *column.Store, config Config, rng *rand.Rand) (*Statistic, error) {
	classes, err := store.Classes()
	if err != nil {
		return nil, err
	}
	features, err := store.Features(config.Features)
	if err != nil {
		return nil, err
	}
	config.Features = features
	ignored := make(map[int]bool, len(config.Ignored))
	for _, c := range config.Ignored {
		if c < 0 || c >= store.ClassColumn() {
			return nil, fmt.Errorf("ignored column %d out of range [0, %d)", c, store.ClassColumn())
		}
		ignored[c] = true
	}
	var usable []int
	for c := 0; c < store.ClassColumn(); c++ {
		if !ignored[c] {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("no columns left to split on")
	}
	return &Statistic{
		store:   store,
		config:  config,
		scale:   config.Strategy.Scale(),
		classes: classes,
		usable:  usable,
		rng:     rng,
		dist:    make([]float64, classes),
	}, nil
}

// RootBounds returns the bounds of every column on the whole store,
// on the given scale
func RootBounds(store *column.Store, scale column.Scale) []Bound {
	bounds := make([]Bound, store.Columns())
	for c := range bounds {
		bounds[c] = Bound{0, store.Column(c).Codes(scale) - 1}
	}
	return bounds
}

// Reseed replaces the statistic's source of random numbers
func (s *Statistic) Reseed(rng *rand.Rand) { s.rng = rng }

/*
Reset prepares the statistic to accumulate the rows of a node whose
columns are known to be within the given bounds. It selects a subset
of the columns that can still be split (those whose bound spans more
than one code) with reservoir sampling and zeroes their contingency
tables.
*/
func (s *Statistic) Reset(bounds []Bound) {
	s.bounds = bounds
	s.selected = s.selected[:0]
	seen := 0
	for _, c := range s.usable {
		if bounds[c].Constant() {
			continue
		}
		seen++
		if len(s.selected) < s.config.Features {
			s.selected = append(s.selected, c)
			continue
		}
		if off := s.rng.Intn(seen); off < s.config.Features {
			s.selected[off] = c
		}
	}
	if cap(s.tables) < len(s.selected) {
		s.tables = make([][]float64, len(s.selected))
	}
	s.tables = s.tables[:len(s.selected)]
	for i, c := range s.selected {
		size := (bounds[c].Hi - bounds[c].Lo + 1) * s.classes
		if cap(s.tables[i]) < size {
			s.tables[i] = make([]float64, size)
		} else {
			s.tables[i] = s.tables[i][:size]
			for j := range s.tables[i] {
				s.tables[i][j] = 0
			}
		}
	}
	for j := range s.dist {
		s.dist[j] = 0
	}
	s.weight = 0
	s.rows = 0
}

// Selected returns the columns the statistic evaluates
func (s *Statistic) Selected() []int { return s.selected }

// Add accumulates a row into the statistic.
func (s *Statistic) Add(row dataset.Row) {
	class := row.Class()
	w := s.classWeight(class)
	s.dist[class] += w
	s.weight += w
	s.rows++
	for i, c := range s.selected {
		b := s.bounds[c]
		code := row.CodeAt(s.scale, c)
		if code < b.Lo {
			code = b.Lo
		} else if code > b.Hi {
			code = b.Hi
		}
		s.tables[i][(code-b.Lo)*s.classes+class] += w
	}
}

// AddView accumulates every row of a view into the statistic
func (s *Statistic) AddView(v *dataset.View) {
	v.Each(s.Add)
}

// Rows returns the number of rows accumulated
func (s *Statistic) Rows() int { return s.rows }

// Majority returns the class with the most mass, breaking ties at
// random.
func (s *Statistic) Majority() int {
	return MaxIndex(s.dist, s.rng)
}

/*
Split returns the best split among the selected columns. When the
accumulated rows all have the same class it returns a ConstantLeaf
split, and when no selected column has a code boundary with rows on
both sides it returns an ImpossibleLeaf split with the majority class.
Ties between columns are won by the column evaluated first.
*/
func (s *Statistic) Split() Split {
	present, class := 0, 0
	for c, m := range s.dist {
		if m > 0 {
			present++
			class = c
		}
	}
	if present <= 1 {
		return Constant(class)
	}
	best := Split{Column: ImpossibleLeaf}
	for i, c := range s.selected {
		bin, fitness, ok := s.evaluate(s.tables[i])
		if !ok {
			continue
		}
		if best.IsLeaf() || fitness > best.Fitness {
			best = Split{Column: c, Bin: s.bounds[c].Lo + bin, Fitness: fitness}
		}
	}
	if best.IsLeaf() {
		return Impossible(s.Majority())
	}
	return best
}

// evaluate returns the best boundary of a contingency table, as the
// last code on the left side, and its fitness, or false if every
// boundary leaves a side empty.
func (s *Statistic) evaluate(table []float64) (int, float64, bool) {
	left := make([]float64, s.classes)
	right := make([]float64, s.classes)
	copy(right, s.dist)
	bins := len(table) / s.classes
	bestBin, bestFitness, found := 0, 0.0, false
	var wL float64
	for b := 0; b < bins-1; b++ {
		for j := 0; j < s.classes; j++ {
			v := table[b*s.classes+j]
			left[j] += v
			right[j] -= v
			wL += v
		}
		wR := s.weight - wL
		if wL <= 0 || wR <= 1e-9*s.weight {
			continue
		}
		var fitness float64
		if s.config.Strategy == Gini {
			fitness = 1 - (gini(left, wL)*wL+gini(right, wR)*wR)/s.weight
		} else {
			fitness = 1 - (entropy(left, wL)*wL+entropy(right, wR)*wR)/s.weight/s.maxEntropy()
		}
		if !found || fitness > bestFitness {
			bestBin, bestFitness, found = b, fitness, true
		}
	}
	return bestBin, bestFitness, found
}

// maxEntropy is the entropy of a uniform distribution over the
// classes, which scales entropy fitness into [0, 1]
func (s *Statistic) maxEntropy() float64 {
	if s.classes < 2 {
		return 1
	}
	return math.Log(float64(s.classes))
}

func (s *Statistic) classWeight(class int) float64 {
	if class < len(s.config.ClassWeights) {
		return s.config.ClassWeights[class]
	}
	return 1
}

// entropy returns the Shannon entropy, in nats, of a distribution
// with the given total mass.
func entropy(dist []float64, total float64) float64 {
	var e float64
	for _, m := range dist {
		if m > 0 {
			p := m / total
			e -= p * math.Log(p)
		}
	}
	return e
}

// gini returns the Gini impurity of a distribution with the given
// total mass.
func gini(dist []float64, total float64) float64 {
	g := 1.0
	for _, m := range dist {
		if m > 0 {
			p := m / total
			g -= p * p
		}
	}
	return g
}

// MaxIndex returns the index of the largest value, choosing among
// equally large values at random if rng is not nil or the first one
// otherwise.
func MaxIndex(values []float64, rng *rand.Rand) int {
	best, ties := 0, 1
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > values[best]:
			best, ties = i, 1
		case values[i] == values[best]:
			ties++
			if rng != nil && rng.Intn(ties) == 0 {
				best = i
			}
		}
	}
	return best
}
