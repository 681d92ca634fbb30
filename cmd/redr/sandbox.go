package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/sigstore"
)

var sandboxBundle string

func init() {
	SandboxCmd.Flags().StringVarP(&sandboxBundle, "set", "s", "", "compiled .sset bundle to evaluate against (required)")
	_ = SandboxCmd.MarkFlagRequired("set")
}

// SandboxCmd evaluates a newline-delimited list of observed API calls,
// one per line, against a bundle's Calls set — the offline counterpart to
// a live sandbox run feeding the same predicate hashes.
var SandboxCmd = &cobra.Command{
	Use:   "sandbox <trace>",
	Short: "evaluate a sandbox call trace (one call per line) against a compiled bundle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		bundleFile, err := os.Open(sandboxBundle)
		if err != nil {
			fatalf("sandbox: %v", err)
		}
		defer bundleFile.Close()

		store, err := sigstore.LoadFromBundle(bundleFile)
		if err != nil {
			fatalf("sandbox: %v", err)
		}

		calls, err := readCallTrace(path)
		if err != nil {
			fatalf("sandbox: %v", err)
		}

		matched, ok := store.EvalSandbox(calls)
		if !ok {
			fmt.Printf("%s: clean\n", path)
			return
		}
		fmt.Printf("%s: malicious (%s: %s)\n", path, matched.Name, matched.Description)
	},
}

func readCallTrace(path string) ([]digest.Sha256Buf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hashes []digest.Sha256Buf
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		hashes = append(hashes, digest.FromBytes([]byte(strings.ToLower(line))))
	}
	return hashes, scanner.Err()
}
