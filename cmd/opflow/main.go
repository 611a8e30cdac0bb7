// Package main implements the opflow command line. It runs a cache-loop
// pipeline driven by configuration, optionally bridged to NATS, and serves
// its runtime metrics.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, set at build time via -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "opflow"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Concurrent operation-graph runtime",
		Long: `opflow runs graphs of operations connected by bounded queues.
Variants flow from sources through processors to sinks; control tags
synchronize, pause and stop the graph.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	root.PersistentFlags().StringSliceP("config", "c", nil,
		"configuration file, JSON or YAML (repeat to layer)")
	root.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "override log.format (json, text)")

	root.AddCommand(newRunCmd(), newValidateCmd(), newVersionCmd())
	root.Version = Version
	return root
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
