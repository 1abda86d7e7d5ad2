// Command kernel boots the NanoSec-OS hosted simulation: a single process
// that wires up every kernel/* subsystem behind one Kernel context and
// drives a shell session against it, either interactively or from a
// script file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nanosec-go/logging"
)

var (
	version   = "0.1.0"
	specVer   = "1.0"
)

var (
	globalLogFormat string
	globalLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "kernel",
	Short: "NanoSec-OS hosted kernel simulation",
	Long: `kernel boots a hosted simulation of the NanoSec-OS x86 kernel:
interrupt dispatch, paging and the kmalloc heap, a preemptive round-robin
scheduler, pipes, a NE2000-backed TCP/IP stack, and a small Unix-style
shell, all running as goroutines inside one Go process instead of on bare
metal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "log output format: text or json")
	rootCmd.PersistentFlags().StringVar(&globalLogLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func setupLogging() {
	cfg := logging.Config{
		Level:  logging.ParseLevel(globalLogLevel),
		Format: globalLogFormat,
		Output: os.Stderr,
	}
	logging.SetDefault(logging.NewLogger(cfg))
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
