package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden by ldflags at build time.
var Version = "0.1.0"

// Build identifies the build (e.g. a commit-derived string); also an
// ldflag override.
var Build = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagJSON {
			return printJSON(map[string]string{"version": Version, "build": Build})
		}
		fmt.Printf("memd version %s (%s)\n", Version, Build)
		return nil
	},
}
