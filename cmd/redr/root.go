// Command redr is the offline/online front door to the signature engine:
// compile human-authored rules into a bundle, evaluate a file or sandbox
// trace against one, or run the live kernel-event detection loop.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/radkum/redr/version"
)

var showVersion bool

func init() {
	RootCmd.AddCommand(CompileCmd)
	RootCmd.AddCommand(EvaluateCmd)
	RootCmd.AddCommand(SandboxCmd)
	RootCmd.AddCommand(StartDetectionCmd)
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
}

var logLevel string

// RootCmd is the main command for the redr binary.
var RootCmd = &cobra.Command{
	Use:   "redr",
	Short: "redr compiles and evaluates behavioral antimalware signatures",
	Long:  "redr compiles and evaluates behavioral antimalware signatures",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("redr: %w", err)
		}
		logrus.SetLevel(level)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.PrintVersion()
			return
		}
		// nolint:errcheck
		cmd.Usage()
	},
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fatalf("%v", err)
	}
}
