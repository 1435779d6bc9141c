package split

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pbanos/grove/column"
	"github.com/pbanos/grove/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newView(t *testing.T, rows [][]float64) *dataset.View {
	t.Helper()
	return newBinnedView(t, rows, 0)
}

func newBinnedView(t *testing.T, rows [][]float64, binLimit int) *dataset.View {
	t.Helper()
	names := make([]string, len(rows[0]))
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	s, err := column.New(names, len(names)-1)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, s.AddRow(r))
	}
	require.NoError(t, s.Freeze(binLimit))
	v, err := dataset.NewRoot(s)
	require.NoError(t, err)
	return v
}

func accumulate(t *testing.T, v *dataset.View, config Config) *Statistic {
	t.Helper()
	st, err := New(v.Store(), config, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	st.Reset(RootBounds(v.Store(), config.Strategy.Scale()))
	st.AddView(v)
	return st
}

func TestSingleClassIsConstant(t *testing.T) {
	v := newView(t, [][]float64{{1, 5, 2}, {2, 6, 2}, {3, 7, 2}})
	for _, strategy := range []Strategy{Entropy, Gini} {
		for features := 1; features <= 2; features++ {
			st := accumulate(t, v, Config{Strategy: strategy, Features: features})
			s := st.Split()
			assert.Equal(t, ConstantLeaf, s.Column)
			assert.Equal(t, 2, s.Class)
			assert.True(t, s.IsLeaf())
		}
	}
}

func TestPerfectSplit(t *testing.T) {
	v := newView(t, [][]float64{{1, 0}, {1, 0}, {2, 1}, {2, 1}})
	for _, strategy := range []Strategy{Entropy, Gini} {
		st := accumulate(t, v, Config{Strategy: strategy})
		s := st.Split()
		assert.Equal(t, 0, s.Column)
		assert.Equal(t, 0, s.Bin)
		assert.InDelta(t, 1.0, s.Fitness, 1e-9)
		assert.Equal(t, float32(1.5), v.Store().Threshold(s.Column, s.Bin))
	}
}

func TestEntropySeesEveryDistinctValue(t *testing.T) {
	rows := make([][]float64, 2000)
	for i := range rows {
		class := 1.0
		if i == 0 {
			class = 0
		}
		rows[i] = []float64{float64(i), class}
	}
	v := newBinnedView(t, rows, 1024)

	st := accumulate(t, v, Config{Strategy: Entropy, Features: 1})
	s := st.Split()
	assert.Equal(t, 0, s.Column)
	assert.Equal(t, 0, s.Bin)
	assert.InDelta(t, 1.0, s.Fitness, 1e-9)
	threshold := v.Store().ThresholdAt(Entropy.Scale(), s.Column, s.Bin)
	assert.Equal(t, float32(0.5), threshold)
	left, right := v.Filter(s.Column, threshold)
	assert.Equal(t, 1, left.Rows())
	assert.Equal(t, 1999, right.Rows())

	st = accumulate(t, v, Config{Strategy: Gini, Features: 1})
	s = st.Split()
	assert.Equal(t, 0, s.Bin)
	assert.Equal(t, float32(1.5), v.Store().ThresholdAt(Gini.Scale(), s.Column, s.Bin))
}

func TestFitnessIsNormalized(t *testing.T) {
	v := newView(t, [][]float64{{1, 0}, {1, 1}, {2, 1}, {2, 1}})
	s := accumulate(t, v, Config{Strategy: Entropy}).Split()
	assert.InDelta(t, 0.5, s.Fitness, 1e-9)
	s = accumulate(t, v, Config{Strategy: Gini}).Split()
	assert.InDelta(t, 0.75, s.Fitness, 1e-9)

	v = newView(t, [][]float64{{1, 0}, {1, 1}, {1, 2}, {2, 0}, {2, 1}, {2, 2}})
	s = accumulate(t, v, Config{Strategy: Entropy}).Split()
	assert.InDelta(t, 0.0, s.Fitness, 1e-9)
}

func TestImpossibleSplit(t *testing.T) {
	v := newView(t, [][]float64{{1, 0}, {1, 1}, {1, 1}})
	st := accumulate(t, v, Config{})
	s := st.Split()
	assert.Equal(t, ImpossibleLeaf, s.Column)
	assert.Equal(t, 1, s.Class)
}

func TestIgnoredColumnsAreNotSelected(t *testing.T) {
	v := newView(t, [][]float64{{1, 1, 0}, {2, 1, 0}, {3, 2, 1}, {4, 2, 1}})
	st := accumulate(t, v, Config{Features: 2, Ignored: []int{0}})
	assert.Equal(t, []int{1}, st.Selected())
	s := st.Split()
	assert.Equal(t, 1, s.Column)

	_, err := New(v.Store(), Config{Ignored: []int{2}}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestClassWeightsChangeMajority(t *testing.T) {
	v := newView(t, [][]float64{{1, 0}, {1, 0}, {1, 1}})
	st := accumulate(t, v, Config{ClassWeights: []float64{1, 5}})
	s := st.Split()
	assert.Equal(t, ImpossibleLeaf, s.Column)
	assert.Equal(t, 1, s.Class)
}

// bruteForce recomputes the fitness of every boundary of every column
// straight from the rows.
func bruteForce(v *dataset.View, strategy Strategy) (int, int, float64) {
	s := v.Store()
	scale := strategy.Scale()
	classes, _ := s.Classes()
	bestCol, bestBin, bestFitness := -1, -1, math.Inf(-1)
	for col := 0; col < s.ClassColumn(); col++ {
		for bin := 0; bin < s.Column(col).Codes(scale)-1; bin++ {
			left := make([]float64, classes)
			right := make([]float64, classes)
			var wL, wR float64
			v.Each(func(r dataset.Row) {
				if r.CodeAt(scale, col) <= bin {
					left[r.Class()]++
					wL++
				} else {
					right[r.Class()]++
					wR++
				}
			})
			var fitness float64
			if strategy == Gini {
				fitness = 1 - (gini(left, wL)*wL+gini(right, wR)*wR)/(wL+wR)
			} else {
				fitness = 1 - (entropy(left, wL)*wL+entropy(right, wR)*wR)/(wL+wR)/math.Log(float64(classes))
			}
			if fitness > bestFitness+1e-12 {
				bestCol, bestBin, bestFitness = col, bin, fitness
			}
		}
	}
	return bestCol, bestBin, bestFitness
}

func TestSplitIsArgmax(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 20; trial++ {
		rows := make([][]float64, 30)
		for i := range rows {
			rows[i] = []float64{float64(rng.Intn(6)), float64(rng.Intn(4)), float64(rng.Intn(5)), float64(rng.Intn(3))}
		}
		v := newView(t, rows)
		for _, strategy := range []Strategy{Entropy, Gini} {
			st := accumulate(t, v, Config{Strategy: strategy, Features: 3})
			s := st.Split()
			col, bin, fitness := bruteForce(v, strategy)
			if s.IsLeaf() {
				assert.Equal(t, -1, col)
				continue
			}
			assert.GreaterOrEqual(t, s.Fitness, 0.0)
			assert.InDelta(t, fitness, s.Fitness, 1e-9)
			if math.Abs(fitness-s.Fitness) < 1e-12 {
				assert.Equal(t, col, s.Column)
				assert.Equal(t, bin, s.Bin)
			}
		}
	}
}

func TestReservoirSelectsRequestedFeatures(t *testing.T) {
	row := []float64{1, 2, 3, 4, 5, 6, 7, 8, 0}
	other := []float64{2, 3, 4, 5, 6, 7, 8, 9, 1}
	v := newView(t, [][]float64{row, other})
	st := accumulate(t, v, Config{Features: 3})
	sel := st.Selected()
	assert.Len(t, sel, 3)
	seen := map[int]bool{}
	for _, c := range sel {
		assert.False(t, seen[c])
		seen[c] = true
		assert.Less(t, c, 8)
	}
}

func TestChildBounds(t *testing.T) {
	bounds := []Bound{{0, 9}, {0, 4}, {0, 1}}
	left, right := ChildBounds(bounds, Split{Column: 0, Bin: 3})
	assert.Equal(t, Bound{0, 3}, left[0])
	assert.Equal(t, Bound{4, 9}, right[0])
	assert.Equal(t, bounds[1], left[1])
	assert.Equal(t, Bound{0, 9}, bounds[0])
}

func TestMaxIndex(t *testing.T) {
	assert.Equal(t, 1, MaxIndex([]float64{1, 3, 2}, nil))
	assert.Equal(t, 0, MaxIndex([]float64{3, 3, 2}, nil))
	rng := rand.New(rand.NewSource(4))
	picked := map[int]bool{}
	for i := 0; i < 100; i++ {
		picked[MaxIndex([]float64{3, 1, 3}, rng)] = true
	}
	assert.Equal(t, map[int]bool{0: true, 2: true}, picked)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Gini")
	require.NoError(t, err)
	assert.Equal(t, Gini, s)
	_, err = ParseStrategy("variance")
	assert.Error(t, err)
}
