package grove

import (
	"errors"
	"fmt"
	"math"

	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
	"github.com/pbanos/grove/split"
	"github.com/pbanos/grove/tree"
)

// UnboundedDepth is the MaxDepth of trees whose depth is not limited
const UnboundedDepth = -1

// ErrInvalidParams is wrapped by the errors of Params.Validate
var ErrInvalidParams = errors.New("invalid training parameters")

// Params holds the parameters to train a forest with
type Params struct {
	// TreesPerNode is the number of trees each node of the
	// cluster grows
	TreesPerNode int `json:"treesPerNode"`
	// MaxDepth is the maximum number of splits from the root of
	// a tree to its leaves, or UnboundedDepth
	MaxDepth int `json:"maxDepth"`
	// SampleFraction is the fraction of the rows drawn into the
	// bootstrap sample of every tree
	SampleFraction float64 `json:"sampleFraction"`
	// BinLimit is the maximum number of codes a column is
	// quantized into, 0 meaning column.MaxBins
	BinLimit int `json:"binLimit"`
	// SplitStrategy scores candidate splits
	SplitStrategy split.Strategy `json:"splitStrategy"`
	// Seed the seeds of every tree are derived from
	Seed int64 `json:"seed"`
	// ClassColumn is the index of the column holding the class,
	// which must be the last one
	ClassColumn int `json:"classColumn"`
	// IgnoredColumns are never split on
	IgnoredColumns []int `json:"ignoredColumns,omitempty"`
	// NumFeatures is the number of columns evaluated on every
	// node, 0 meaning round(sqrt(columns))
	NumFeatures int `json:"numFeatures"`
	// ClassWeights scales the mass of the rows of each class on
	// splits and samples. Classes without a weight weigh 1.
	ClassWeights map[int]float64 `json:"classWeights,omitempty"`
	// Stratify draws the samples from every class separately
	Stratify bool `json:"stratify"`
	// MinFitness prunes the splits whose fitness is not above it
	MinFitness float64 `json:"minFitness"`
	// MinRows prunes the splits leaving fewer rows than it on
	// either side
	MinRows int `json:"minRows,omitempty"`
}

// DefaultParams returns the parameters used unless told otherwise
func DefaultParams() Params {
	return Params{
		TreesPerNode:   10,
		MaxDepth:       UnboundedDepth,
		SampleFraction: 0.67,
		BinLimit:       1024,
		SplitStrategy:  split.Entropy,
		Seed:           42,
		ClassColumn:    -1,
	}
}

/*
Validate returns an error wrapping ErrInvalidParams if the parameters
cannot be used to train on a dataset with the given number of columns
and classes. A negative ClassColumn stands for the last column.
*/
func (p *Params) Validate(columns, classes int) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}
	if columns < 2 {
		return invalid("%d columns, at least a feature and the class are needed", columns)
	}
	if p.ClassColumn < 0 {
		p.ClassColumn = columns - 1
	}
	if p.ClassColumn != columns-1 {
		return invalid("class column %d is not the last one (%d)", p.ClassColumn, columns-1)
	}
	if p.TreesPerNode < 1 {
		return invalid("%d trees per node", p.TreesPerNode)
	}
	if p.MaxDepth < UnboundedDepth {
		return invalid("max depth %d", p.MaxDepth)
	}
	if !(p.SampleFraction > 0 && p.SampleFraction <= 1) {
		return invalid("sample fraction %v out of range (0, 1]", p.SampleFraction)
	}
	if p.BinLimit < 0 || p.BinLimit > column.MaxBins {
		return invalid("bin limit %d out of range [0, %d]", p.BinLimit, column.MaxBins)
	}
	if p.SplitStrategy != split.Entropy && p.SplitStrategy != split.Gini {
		return invalid("unknown split strategy %d", p.SplitStrategy)
	}
	if p.NumFeatures < 0 || p.NumFeatures >= columns {
		return invalid("%d features out of range (0, %d)", p.NumFeatures, columns)
	}
	ignored := make(map[int]bool)
	for _, c := range p.IgnoredColumns {
		if c < 0 || c >= p.ClassColumn {
			return invalid("ignored column %d out of range [0, %d)", c, p.ClassColumn)
		}
		ignored[c] = true
	}
	if len(ignored) >= columns-1 {
		return invalid("all %d feature columns ignored", columns-1)
	}
	if classes < 1 || classes > tree.MaxClasses {
		return invalid("%d classes out of range [1, %d]", classes, tree.MaxClasses)
	}
	for c, w := range p.ClassWeights {
		if c < 0 || c >= classes {
			return invalid("weight for class %d out of range [0, %d)", c, classes)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			return invalid("weight %v for class %d: %v", w, c, dataset.ErrBadWeight)
		}
	}
	if math.IsNaN(p.MinFitness) {
		return invalid("minimum fitness is NaN")
	}
	if p.MinRows < 0 {
		return invalid("minimum rows %d", p.MinRows)
	}
	return nil
}

func (p *Params) classWeights() []float64 {
	if len(p.ClassWeights) == 0 {
		return nil
	}
	last := 0
	for c := range p.ClassWeights {
		if c > last {
			last = c
		}
	}
	weights := make([]float64, last+1)
	for i := range weights {
		weights[i] = 1
	}
	for c, w := range p.ClassWeights {
		weights[c] = w
	}
	return weights
}

// SampleOptions returns the options to draw the bootstrap samples of
// trees with
func (p *Params) SampleOptions() dataset.SampleOptions {
	return dataset.SampleOptions{
		Fraction:     p.SampleFraction,
		ClassWeights: p.classWeights(),
		Stratify:     p.Stratify,
	}
}

// SplitConfig returns the configuration of the split statistics of
// every node
func (p *Params) SplitConfig() split.Config {
	return split.Config{
		Strategy:     p.SplitStrategy,
		Features:     p.NumFeatures,
		Ignored:      p.IgnoredColumns,
		ClassWeights: p.classWeights(),
	}
}
