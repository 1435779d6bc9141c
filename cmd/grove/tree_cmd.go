package main

import (
	"fmt"
	"os"

	"github.com/pbanos/grove"
	"github.com/pbanos/grove/feature"
	"github.com/pbanos/grove/tree"
	treejson "github.com/pbanos/grove/tree/json"
	"github.com/spf13/cobra"
)

type treeCmdConfig struct {
	*rootCmdConfig
	metadataInput string
	forestKey     string
	index         int
	format        string
}

func treeCmd(rootConfig *rootCmdConfig) *cobra.Command {
	config := &treeCmdConfig{rootCmdConfig: rootConfig}
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print a tree of a forest",
		Long:  `Print a tree of a forest on the blob store as text or JSON, naming columns and classes by the features on the metadata if given.`,
		Run: func(cmd *cobra.Command, args []string) {
			err := config.Validate()
			if err != nil {
				exit(1, err)
			}
			var names treejson.Names
			if config.metadataInput != "" {
				ic := &inputConfig{metadataInput: config.metadataInput}
				schema, features, err := ic.schema()
				if err != nil {
					exit(2, err)
				}
				names.Columns = feature.Names(features)
				names.Classes = schema.ClassFeature().AvailableValues()
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
			if config.index >= len(f.TreeKeys) {
				exit(5, fmt.Errorf("forest %s has %d trees, no tree %d", f.Key, len(f.TreeKeys), config.index))
			}
			bits, err := env.store.Get(ctx, f.TreeKeys[config.index])
			if err != nil {
				exit(6, err)
			}
			t, err := tree.Decode(bits)
			if err != nil {
				exit(7, err)
			}
			if config.format == "json" {
				if err := treejson.WriteJSONTree(os.Stdout, t, names); err != nil {
					exit(8, err)
				}
				return
			}
			depth, leaves, err := tree.Stats(bits)
			if err != nil {
				exit(7, err)
			}
			fmt.Printf("tree %d of forest %s: %d bytes, depth %d, %d leaves, sample %d\n", config.index, f.Key, len(bits), depth, leaves, t.SubsetID)
			fmt.Print(t)
		},
	}
	cmd.Flags().StringVarP(&(config.forestKey), "forest", "f", "", "key of the forest (required)")
	cmd.Flags().IntVarP(&(config.index), "index", "n", 0, "index of the tree within the forest")
	cmd.Flags().StringVar(&(config.format), "format", "text", "output format, text or json")
	cmd.Flags().StringVarP(&(config.metadataInput), "metadata", "m", "", "path to a YML file with the features the forest was grown on, to name columns and classes in json output")
	return cmd
}

func (tcc *treeCmdConfig) Validate() error {
	if tcc.forestKey == "" {
		return fmt.Errorf("required forest flag was not set")
	}
	if tcc.index < 0 {
		return fmt.Errorf("tree index must not be negative")
	}
	if tcc.format != "text" && tcc.format != "json" {
		return fmt.Errorf("unknown format %q, expected text or json", tcc.format)
	}
	return nil
}
