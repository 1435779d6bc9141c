package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"

	"github.com/pbanos/grove"
	"github.com/pbanos/grove/dataset"
	grovecsv "github.com/pbanos/grove/dataset/csv"
	"github.com/pbanos/grove/tree"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type predictCmdConfig struct {
	*rootCmdConfig
	inputConfig
	forestKey string
	output    string
	maxTrees  int
}

func predictCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &predictCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the class of a set of data with a forest",
		Long: `Predict the class of every row of a set of data by the majority vote of the trees of a forest, writing a CSV with the predicted and the known class of every row.
Rows whose class is undefined are predicted too. Ties between classes are broken at random with the seed of the forest.`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				exit(1, err)
			}
			schema, features, err := config.schema()
			if err != nil {
				exit(2, err)
			}
			ctx, cancel := config.Context()
			defer cancel()
			env, err := config.environment(ctx)
			if err != nil {
				exit(3, err)
			}
			defer env.Close(ctx)
			f, err := grove.LoadForest(ctx, env.store, config.forestKey)
			if err != nil {
				exit(4, err)
			}
			trees, err := f.Trees(ctx, env.store, config.maxTrees)
			if err != nil {
				exit(5, err)
			}
			if len(trees) == 0 {
				exit(5, fmt.Errorf("forest %s has no trees", f.Key))
			}
			for i, bits := range trees {
				if err := tree.Validate(bits); err != nil {
					exit(5, fmt.Errorf("tree %d of forest %s: %w", i, f.Key, err))
				}
			}
			src, closeSrc, err := config.source(ctx, features)
			if err != nil {
				exit(6, err)
			}
			defer closeSrc()
			classes := schema.ClassFeature().AvailableValues()
			labeled := &labeledSource{Source: src, column: len(features) - 1, fill: classes[0]}
			s, err := dataset.Load(ctx, labeled, features)
			if err != nil {
				exit(6, fmt.Errorf("loading input: %v", err))
			}
			w := os.Stdout
			if config.output != "" {
				w, err = os.Create(config.output)
				if err != nil {
					exit(7, err)
				}
				defer w.Close()
			}
			if err := s.Freeze(f.Params.BinLimit); err != nil {
				exit(6, err)
			}
			v, err := dataset.NewRoot(s)
			if err != nil {
				exit(6, err)
			}
			n, err := predict(w, v, labeled.known, trees, classes, f.Params.Seed)
			if err != nil {
				exit(8, err)
			}
			config.logger.Info("rows predicted", zap.String("forest", f.Key), zap.Int("trees", len(trees)), zap.Int("rows", n))
		},
	}
	config.addFlags(cmd, "predict the class of")
	cmd.Flags().StringVarP(&(config.forestKey), "forest", "f", "", "key of the forest to predict with (required)")
	cmd.Flags().StringVarP(&(config.output), "output", "o", "", "path to write the predictions to as CSV (defaults to STDOUT)")
	cmd.Flags().IntVar(&(config.maxTrees), "max-trees", 0, "predict with at most this number of trees (defaults to 0: all of them)")
	return cmd
}

func (pcc *predictCmdConfig) Validate() error {
	if pcc.forestKey == "" {
		return fmt.Errorf("required forest flag was not set")
	}
	return pcc.inputConfig.Validate()
}

/*
labeledSource wraps a dataset.Source filling undefined values on the
class column, so unlabeled rows can be loaded. It records whether the
class of every row read was known.
*/
type labeledSource struct {
	dataset.Source
	column int
	fill   string
	known  []bool
}

func (ls *labeledSource) Read(ctx context.Context) (<-chan []interface{}, <-chan error) {
	in, errs := ls.Source.Read(ctx)
	out := make(chan []interface{})
	go func() {
		defer close(out)
		for raw := range in {
			known := len(raw) <= ls.column || raw[ls.column] != nil
			if !known {
				raw[ls.column] = ls.fill
			}
			ls.known = append(ls.known, known)
			out <- raw
		}
	}()
	return out, errs
}

// predict writes a CSV record per row of the view with its index, the
// class predicted by the majority of the trees and its known class, and
// returns the number of rows written.
func predict(w io.Writer, v *dataset.View, known []bool, trees [][]byte, classes []string, seed int64) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"row", "predicted", "class"}); err != nil {
		return 0, err
	}
	rng := rand.New(rand.NewSource(seed))
	votes := make([]int, len(classes))
	for i := 0; i < v.Rows(); i++ {
		for c := range votes {
			votes[c] = 0
		}
		r := v.Row(i)
		for _, bits := range trees {
			if c := tree.Classify(bits, r); c < len(votes) {
				votes[c]++
			}
		}
		actual := grovecsv.Undefined
		if r.Index() < len(known) && known[r.Index()] {
			actual = classes[r.Class()]
		}
		if err := cw.Write([]string{strconv.Itoa(r.Index()), classes[vote(votes, rng)], actual}); err != nil {
			return i, err
		}
	}
	cw.Flush()
	return v.Rows(), cw.Error()
}

// vote returns the class with the most votes, breaking ties at random
func vote(votes []int, rng *rand.Rand) int {
	best, ties := 0, 0
	for c, n := range votes {
		switch {
		case n > votes[best]:
			best, ties = c, 1
		case n == votes[best]:
			ties++
			if rng.Intn(ties) == 0 {
				best = c
			}
		}
	}
	return best
}
