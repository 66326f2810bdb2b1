package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kithinjibrian/pod/internal/deploy"
	"github.com/kithinjibrian/pod/internal/logging"
)

var forceInstall bool

// deployCmd wires the Deploy Orchestrator to the CLI surface (spec §6).
var deployCmd = &cobra.Command{
	Use:   "deploy <target> [--force-install]",
	Short: "Run the idempotent deploy orchestrator against a named target",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploy,
}

func init() {
	deployCmd.Flags().BoolVar(&forceInstall, "force-install", false, "re-run every ensure regardless of convergence")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	targetName := args[0]

	manifestPath := "pod.deploy.yml"
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("deploy: reading %s: %w", manifestPath, err)
	}

	manifest, err := deploy.ParseManifest(data)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := logging.Get(logging.CategoryDeploy)
	progress := deploy.NewProgress(os.Stdout)

	if err := deploy.Deploy(ctx, manifest, targetName, deploy.Options{ForceInstall: forceInstall}, progress, log); err != nil {
		return err
	}

	fmt.Printf("deploy: target %q converged\n", targetName)
	return nil
}
