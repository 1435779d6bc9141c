package grove

import (
	"github.com/pbanos/grove/dataset"
)

// PruningStrategy holds the configuration
// for when a node must not be split further
// or at all.
type PruningStrategy struct {
	// Pruner is applied to the partition
	// of a node's rows to determine
	// if the result is worth incorporating
	// into the tree.
	Pruner
	// MaxDepth is the depth at which nodes
	// become leaves whatever their rows, or
	// UnboundedDepth.
	MaxDepth int
}

// NewPruningStrategy returns the pruning strategy for the given params
func NewPruningStrategy(p Params) *PruningStrategy {
	var pruners []Pruner
	if p.MinFitness > 0 {
		pruners = append(pruners, FixedFitnessPruner(p.MinFitness))
	}
	if p.MinRows > 0 {
		pruners = append(pruners, MinRowsPruner(p.MinRows))
	}
	ps := &PruningStrategy{Pruner: NoPruner(), MaxDepth: p.MaxDepth}
	switch len(pruners) {
	case 1:
		ps.Pruner = pruners[0]
	case 2:
		ps.Pruner = AnyPruner(pruners...)
	}
	return ps
}

// Leaf returns whether a node at the given depth must be a leaf
func (ps *PruningStrategy) Leaf(depth int) bool {
	return ps.MaxDepth != UnboundedDepth && depth >= ps.MaxDepth
}

/*
Pruner is an interface wrapping the Prune method, that can be used
to decide whether a partition is good enough to become part of a tree
or if it must be pruned instead.

The Prune method takes the view of a node's rows and a partition of them
and returns a boolean: true to indicate the partition must be pruned, false to
allow its adding to the tree and further development.
*/
type Pruner interface {
	Prune(v *dataset.View, p *Partition) bool
}

/*
PrunerFunc wraps a function with the Prune method signature to implement
the Pruner interface
*/
type PrunerFunc func(v *dataset.View, p *Partition) bool

/*
Prune takes a view and a partition and invokes the PrunerFunc with
those parameters to return its boolean result.
*/
func (pf PrunerFunc) Prune(v *dataset.View, p *Partition) bool {
	return pf(v, p)
}

/*
FixedFitnessPruner takes a fitnessThreshold float64 value
and returns a Pruner whose Prune method returns whether the fitnessThreshold
is greater or equal to the received partition's fitness
*/
func FixedFitnessPruner(fitnessThreshold float64) Pruner {
	return PrunerFunc(func(v *dataset.View, p *Partition) bool {
		return fitnessThreshold >= p.Fitness
	})
}

/*
MinRowsPruner returns a Pruner whose Prune method returns whether either
side of the partition has fewer than the given number of rows
*/
func MinRowsPruner(rows int) Pruner {
	return PrunerFunc(func(v *dataset.View, p *Partition) bool {
		return p.Left.Rows() < rows || p.Right.Rows() < rows
	})
}

// AnyPruner returns a Pruner that prunes the partitions any of the
// given pruners prunes
func AnyPruner(pruners ...Pruner) Pruner {
	return PrunerFunc(func(v *dataset.View, p *Partition) bool {
		for _, pr := range pruners {
			if pr.Prune(v, p) {
				return true
			}
		}
		return false
	})
}

/*
NoPruner returns a Pruner whose Prune method always returns false, that is,
never prunes.
*/
func NoPruner() Pruner {
	return PrunerFunc(func(v *dataset.View, p *Partition) bool {
		return false
	})
}
