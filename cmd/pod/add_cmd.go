package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addCmd generates boilerplate for a component or feature. Out of scope
// (spec §1): boilerplate generation is templates emitting strings, no
// core logic here.
var addCmd = &cobra.Command{
	Use:   "add (c|f) <name>",
	Short: "Generate a component or feature",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, name := args[0], args[1]
		var label, path string
		switch kind {
		case "c":
			label = "component"
			path = fmt.Sprintf("src/components/%s.tsx", name)
		case "f":
			label = "feature"
			path = fmt.Sprintf("src/features/%s/index.ts", name)
		default:
			return fmt.Errorf("add: unknown kind %q, expected \"c\" or \"f\"", kind)
		}
		fmt.Printf("add: would generate %s %q at %s\n", label, name, path)
		return nil
	},
}
