package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	// VersionMajor is the major number in grove's version
	VersionMajor = 0
	// VersionMinor is the minor number in grove's version
	VersionMinor = 1
	// VersionPatch is the patch number in grove's version
	VersionPatch = 0
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of grove",
		Long:  `All software has versions. This is grove's`,
		// the version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("grove v%d.%d.%d\n", VersionMajor, VersionMinor, VersionPatch)
		},
	}
}
