// Command cvpipe runs the pipeline with simulated devices and modules.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	successExitCode = 0
	errorExitCode   = 1
)

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "cvpipe",
		Short:         "Share a capture device between computer vision modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("debug", "d", false, "enable debug output")
	root.SetOut(out)
	root.AddCommand(
		runCommand(),
		defaultConfigCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		os.Exit(errorExitCode)
	}
	os.Exit(successExitCode)
}
