package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// dockerizeCmd generates container and container-compose files. Out of
// scope (spec §1): no core logic here.
var dockerizeCmd = &cobra.Command{
	Use:   "dockerize <env>",
	Short: "Generate container files for an environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := args[0]
		fmt.Printf("dockerize: would generate Dockerfile.%s and docker-compose.%s.yml\n", env, env)
		return nil
	},
}
