package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
)

// SampleOptions configures how a bootstrap sample is drawn
type SampleOptions struct {
	// Fraction of the view's rows to draw, in (0, 1]
	Fraction float64
	// ClassWeights holds the sampling weight of the rows of each
	// class. Rows of classes without a weight weigh 1.
	ClassWeights []float64
	// Stratify draws the sample from every class separately, with
	// the same fraction of each class' rows.
	Stratify bool
}

func (o SampleOptions) weight(class int) float64 {
	if class < len(o.ClassWeights) {
		return o.ClassWeights[class]
	}
	return 1
}

func (o SampleOptions) validate() error {
	if !(o.Fraction > 0 && o.Fraction <= 1) {
		return fmt.Errorf("sample fraction %v out of range (0, 1]", o.Fraction)
	}
	for c, w := range o.ClassWeights {
		if math.IsNaN(w) || w <= 0 {
			return fmt.Errorf("weight %v for class %d: %w", w, c, ErrBadWeight)
		}
	}
	return nil
}

// Sample draws a bootstrap sample from the view with a seed taken
// from the given random source. The seed is recorded on the sample
// so that it can be drawn again with SampleWithSeed.
func (v *View) Sample(rng *rand.Rand, opts SampleOptions) (*View, error) {
	return v.SampleWithSeed(int64(rng.Uint32()), opts)
}

/*
SampleWithSeed draws round(rows x fraction) rows of the view with
replacement. Rows are weighted by the weight of their class: a ladder
of uniform partial sums normalized to the total weight is turned into
a number of occurrences per row, and every draw takes an occurrence
starting from a random offset and moving forward until one is
available.
*/
func (v *View) SampleWithSeed(seed int64, opts SampleOptions) (*View, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("sampling %v: %w", v, err)
	}
	rng := rand.New(rand.NewSource(seed))
	var perm []int
	if opts.Stratify {
		perm = v.stratifiedDraw(rng, opts.Fraction)
	} else {
		perm = v.weightedDraw(rng, opts)
	}
	if len(perm) == 0 {
		return nil, fmt.Errorf("sampling %v with fraction %v: %w", v, opts.Fraction, ErrEmptyView)
	}
	inBag := roaring.New()
	for _, r := range perm {
		inBag.Add(uint32(r))
	}
	parent := roaring.New()
	for _, r := range v.perm[v.start:v.end] {
		parent.Add(uint32(r))
	}
	return &View{
		store:  v.store,
		perm:   perm,
		end:    len(perm),
		kind:   Sample,
		seed:   seed,
		inBag:  inBag,
		parent: parent,
	}, nil
}

func (v *View) weightedDraw(rng *rand.Rand, opts SampleOptions) []int {
	sz := v.Rows()
	bagSize := int(math.Round(float64(sz) * opts.Fraction))
	weights := make([]float64, sz)
	sumWeights := 0.0
	for i := range weights {
		weights[i] = opts.weight(v.store.Class(v.Permute(i)))
		sumWeights += weights[i]
	}
	ladder := make([]float64, sz)
	sumProbs := 0.0
	for i := range ladder {
		sumProbs += rng.Float64()
		ladder[i] = sumProbs
	}
	norm := sumWeights / sumProbs
	for i := range ladder {
		ladder[i] *= norm
	}
	ladder[sz-1] = sumWeights

	occurrences := make([]int, sz)
	k := 0
	sumProbs = 0
	for l := 0; l < sz && k < sz; l++ {
		sumProbs += weights[l]
		if l == sz-1 {
			sumProbs = sumWeights
		}
		for k < sz && ladder[k] <= sumProbs {
			occurrences[l]++
			k++
		}
	}
	occurrences[sz-1] += sz - k

	perm := make([]int, 0, bagSize)
	for i := 0; i < bagSize; i++ {
		offset := rng.Intn(sz)
		for occurrences[offset] == 0 {
			offset = (offset + 1) % sz
		}
		occurrences[offset]--
		perm = append(perm, v.Permute(offset))
	}
	return perm
}

func (v *View) stratifiedDraw(rng *rand.Rand, fraction float64) []int {
	classes, _ := v.store.Classes()
	strata := make([][]int, classes)
	v.Each(func(r Row) {
		c := r.Class()
		strata[c] = append(strata[c], r.Index())
	})
	var perm []int
	for _, rows := range strata {
		if len(rows) == 0 {
			continue
		}
		draws := int(math.Round(float64(len(rows)) * fraction))
		for i := 0; i < draws; i++ {
			perm = append(perm, rows[rng.Intn(len(rows))])
		}
	}
	return perm
}

// Seed returns the seed a sample was drawn with
func (v *View) Seed() int64 { return v.seed }

// InBag returns whether the given store row was drawn into the
// sample. It returns false for views that are not samples.
func (v *View) InBag(row int) bool {
	if v.inBag == nil {
		return false
	}
	return v.inBag.Contains(uint32(row))
}

// Complement returns the view over the rows of the view a sample
// was drawn from that were not drawn into it, in ascending order.
func (v *View) Complement() (*View, error) {
	if v.kind != Sample {
		return nil, fmt.Errorf("complementing %v: %w", v, ErrNotSample)
	}
	out := roaring.AndNot(v.parent, v.inBag)
	if out.IsEmpty() {
		return nil, fmt.Errorf("complementing %v: %w", v, ErrEmptyView)
	}
	perm := make([]int, 0, out.GetCardinality())
	it := out.Iterator()
	for it.HasNext() {
		perm = append(perm, int(it.Next()))
	}
	return &View{store: v.store, perm: perm, end: len(perm), kind: Complement}, nil
}
