package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/radkum/redr/sigstore"
)

var (
	compileDir string
	compileOut string
)

func init() {
	CompileCmd.Flags().StringVarP(&compileDir, "dir", "d", "", "directory of YAML rule files to compile (required)")
	CompileCmd.Flags().StringVarP(&compileOut, "out", "o", "rules.sset", "output bundle path")
	_ = CompileCmd.MarkFlagRequired("dir")
}

// CompileCmd compiles a directory of YAML rule files into a checksummed
// bundle.
var CompileCmd = &cobra.Command{
	Use:   "compile",
	Short: "compile a directory of YAML signature rules into a .sset bundle",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := sigstore.LoadFromDir(compileDir)
		if err != nil {
			fatalf("compile: %v", err)
		}

		f, err := os.Create(compileOut)
		if err != nil {
			fatalf("compile: %v", err)
		}
		defer f.Close()

		if err := store.Serialize(f); err != nil {
			fatalf("compile: %v", err)
		}

		fmt.Printf("compiled %d rules into %s\n", store.RuleCount(), compileOut)
	},
}
