package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// newCmd scaffolds a project. Out of scope (spec §1): templates emitting
// strings, no core logic here.
var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Scaffold a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("new: would scaffold project %q at %s\n", args[0], dest)
		return nil
	},
}
