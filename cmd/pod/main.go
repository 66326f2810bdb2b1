package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kithinjibrian/pod/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd is the pod command-center CLI.
var rootCmd = &cobra.Command{
	Use:   "pod",
	Short: "pod - command-center CLI for a component-oriented web framework",
	Long: `pod scaffolds projects, compiles dual client/server bundles through a
compile-time macro expander, generates boilerplate, packages containers,
and drives remote deployments through an idempotent orchestrator.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			config.Encoding = "console"
			config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		return logging.Init(workspace, verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Project root (default: current directory)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(devCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(dockerizeCmd)
	rootCmd.AddCommand(deployCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, causeChain(err))
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, bounded by
// the global --timeout flag (spec §5 Cancellation).
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// causeChain prints err followed by its unwrap chain, one cause per line,
// matching the "one-line summary plus a causal chain" contract (spec §7).
func causeChain(err error) string {
	msg := err.Error()
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			break
		}
		cause := u.Unwrap()
		if cause == nil {
			break
		}
		msg += "\n  caused by: " + cause.Error()
		err = cause
	}
	return msg
}
